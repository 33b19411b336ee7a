package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"tasksync/internal/logger"
	"tasksync/internal/service"
	"tasksync/internal/ws"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
)

type frame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId"`
	Payload   json.RawMessage `json:"payload"`
}

type snapshot struct {
	State   string `json:"state"`
	Loading bool   `json:"loading"`
	Tasks   []struct {
		ID        string `json:"id"`
		Title     string `json:"title"`
		Completed bool   `json:"completed"`
	} `json:"tasks"`
}

// ws_smoke drives a running server through add, toggle and delete for one
// user while a second user watches their own, empty, list.
func main() {
	_ = godotenv.Load()
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		logger.Fatal("JWT_SECRET not set")
	}
	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}
	service.InitJWT(secret)

	connA := dial(port, "smoke-a-"+uuid.NewString()[:8])
	defer connA.Close()
	connB := dial(port, "smoke-b-"+uuid.NewString()[:8])
	defer connB.Close()

	waitSnapshot(connA, "A", func(s snapshot) bool { return s.State == "live" })
	waitSnapshot(connB, "B", func(s snapshot) bool { return s.State == "live" })

	send(connA, ws.MsgAdd, "r1", map[string]any{"title": "smoke task", "category": "Work"})
	ack := waitAck(connA, "r1")
	logger.Info("task added", "id", ack)

	waitSnapshot(connA, "A", func(s snapshot) bool { return len(s.Tasks) == 1 && !s.Tasks[0].Completed })

	send(connA, ws.MsgToggle, "r2", map[string]any{"id": ack})
	waitAck(connA, "r2")
	waitSnapshot(connA, "A", func(s snapshot) bool { return len(s.Tasks) == 1 && s.Tasks[0].Completed })

	send(connA, ws.MsgDelete, "r3", map[string]any{"id": ack})
	waitAck(connA, "r3")
	waitSnapshot(connA, "A", func(s snapshot) bool { return len(s.Tasks) == 0 })

	// B never sees A's task
	send(connB, ws.MsgPing, "p1", nil)
	for {
		f := read(connB, "B")
		if f.Type == ws.MsgPong {
			break
		}
		if f.Type == ws.MsgSnapshot {
			var s snapshot
			_ = json.Unmarshal(f.Payload, &s)
			if len(s.Tasks) != 0 {
				logger.Fatal("user B saw foreign tasks", "tasks", len(s.Tasks))
			}
		}
	}

	logger.Info("smoke test finished")
}

func dial(port, userID string) *websocket.Conn {
	token, err := service.GenerateJWT(userID)
	if err != nil {
		logger.Fatal("gen token", "user_id", userID, "error", err)
	}
	// use 127.0.0.1 to prefer IPv4 (avoid resolving to [::1])
	url := fmt.Sprintf("ws://127.0.0.1:%s/ws?token=%s", port, token)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		logger.Fatal("dial", "user_id", userID, "error", err)
	}
	return conn
}

func send(conn *websocket.Conn, typ, requestID string, payload any) {
	msg := map[string]any{"type": typ, "requestId": requestID}
	if payload != nil {
		msg["payload"] = payload
	}
	if err := conn.WriteJSON(msg); err != nil {
		logger.Fatal("write", "type", typ, "error", err)
	}
}

func read(conn *websocket.Conn, name string) frame {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var f frame
	if err := conn.ReadJSON(&f); err != nil {
		logger.Fatal("read", "conn", name, "error", err)
	}
	return f
}

func waitSnapshot(conn *websocket.Conn, name string, ok func(snapshot) bool) {
	for {
		f := read(conn, name)
		if f.Type != ws.MsgSnapshot {
			continue
		}
		var s snapshot
		if err := json.Unmarshal(f.Payload, &s); err != nil {
			logger.Fatal("decode snapshot", "error", err)
		}
		if ok(s) {
			logger.Info("snapshot", "conn", name, "state", s.State, "tasks", len(s.Tasks))
			return
		}
	}
}

func waitAck(conn *websocket.Conn, requestID string) string {
	for {
		f := read(conn, "A")
		if f.RequestID != requestID {
			continue
		}
		if f.Type == ws.MsgError {
			logger.Fatal("request failed", "request_id", requestID, "payload", string(f.Payload))
		}
		var ack ws.AckPayload
		_ = json.Unmarshal(f.Payload, &ack)
		return ack.ID
	}
}

package ws

const (
	// client - server
	MsgAdd     = "add"
	MsgToggle  = "toggle"
	MsgUpdate  = "update"
	MsgDelete  = "delete"
	MsgAuth    = "auth"
	MsgSignOut = "signOut"
	MsgPing    = "ping"

	// server - client
	MsgSnapshot = "snapshot"
	MsgAck      = "ack"
	MsgError    = "error"
	MsgPong     = "pong"
)

package main

import (
	"flag"
	"fmt"
	"os"

	"tasksync/internal/logger"
	"tasksync/internal/service"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

// issue_token prints a signed identity token, for poking at /ws by hand.
func main() {
	user := flag.String("user", "", "user id to embed (random when empty)")
	flag.Parse()

	_ = godotenv.Load()
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		logger.Fatal("JWT_SECRET not set")
	}
	service.InitJWT(secret)

	if *user == "" {
		*user = uuid.NewString()
	}
	token, err := service.GenerateJWT(*user)
	if err != nil {
		logger.Fatal("failed to generate token", "error", err)
	}

	logger.Info("token issued", "user_id", *user, "ttl", service.TokenTTL)
	fmt.Println(token)
}

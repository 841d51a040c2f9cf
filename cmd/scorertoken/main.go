// Command scorertoken выдает JWT для Kampfgericht или администратора.
//
//	go run ./cmd/scorertoken -user 7 -role scorer -ttl 12h
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/iderdiyok/basketball-tourney/middleware"
	"github.com/iderdiyok/basketball-tourney/models"
)

func main() {
	userID := flag.Int("user", 0, "user id written into the token")
	role := flag.String("role", string(models.RoleScorer), "admin or scorer")
	ttl := flag.Duration("ttl", 12*time.Hour, "token lifetime")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	_ = godotenv.Load()

	secret := os.Getenv("JWT_SECRET_KEY")
	if secret == "" {
		logger.Error("JWT_SECRET_KEY environment variable is not set")
		os.Exit(1)
	}
	if *userID <= 0 {
		logger.Error("user id must be positive", slog.Int("user", *userID))
		os.Exit(2)
	}
	r := models.UserRole(*role)
	if !r.Valid() {
		logger.Error("unknown role", slog.String("role", *role))
		os.Exit(2)
	}

	token, err := middleware.GenerateToken([]byte(secret), *userID, r, *ttl)
	if err != nil {
		logger.Error("failed to sign token", slog.Any("error", err))
		os.Exit(1)
	}
	fmt.Println(token)
}

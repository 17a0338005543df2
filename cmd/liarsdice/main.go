package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/demerle/liars-dice/internal/api"
	"github.com/demerle/liars-dice/internal/auth"
	"github.com/demerle/liars-dice/internal/game"
	"github.com/demerle/liars-dice/internal/session"
)

func main() {
	_ = godotenv.Load()

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	baseURL := envOr("LIARSDICE_API_URL", "http://localhost:8080/api")
	username := os.Getenv("LIARSDICE_USERNAME")
	password := os.Getenv("LIARSDICE_PASSWORD")
	gameID, err := strconv.ParseInt(os.Getenv("LIARSDICE_GAME_ID"), 10, 64)
	if err != nil {
		logger.Fatal("LIARSDICE_GAME_ID must be set to a numeric game id")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	tokens := auth.NewTokenStore()
	client := api.New(baseURL, tokens, logger)
	client.OnUnauthorized(tokens.Clear)
	authSvc := auth.NewService(client, tokens, logger)

	if _, err := authSvc.Login(ctx, username, password); err != nil {
		logger.Fatal("login failed", zap.Error(err))
	}
	if !authSvc.IsAuthenticated() {
		logger.Fatal("token missing or already expired")
	}

	coord := session.New(client, username, gameID, logger)
	if err := coord.Attach(ctx); err != nil {
		logger.Fatal("attach failed", zap.Error(err))
	}
	defer coord.Detach()

	updates, cancelSub := coord.Store().Subscribe()
	defer cancelSub()

	logger.Info("watching game", zap.Int64("gameId", gameID))
	for {
		select {
		case <-ctx.Done():
			return

		case snap, ok := <-updates:
			if !ok {
				return
			}
			printSnapshot(snap)

		case ev := <-coord.Events():
			switch e := ev.(type) {
			case session.Connected:
				logger.Info("connected")
			case session.Disconnected:
				logger.Warn("disconnected")
			case session.ConnectionLost:
				logger.Error("connection lost, reload to continue", zap.Error(e.Err))
				return
			case session.GameError:
				logger.Warn("server error", zap.String("message", e.Message))
			}
		}
	}
}

func printSnapshot(snap *game.Snapshot) {
	fmt.Printf("round %d  status=%s  turn=%s\n",
		snap.RoundNumber, snap.Status, snap.CurrentPlayerUsername)
	for _, p := range snap.Players {
		marker := " "
		if p.Username == snap.CurrentPlayerUsername {
			marker = "*"
		}
		fmt.Printf("  %s %-16s dice=%d active=%v\n", marker, p.Username, p.DiceCount, p.Active)
	}
	if mv := snap.LastMove; mv != nil {
		if mv.IsBid() {
			fmt.Printf("  last move: %s bid %d x %d\n", mv.PlayerUsername, mv.BidQuantity, mv.BidFaceValue)
		} else {
			fmt.Printf("  last move: %s challenged\n", mv.PlayerUsername)
		}
	}
	if snap.Winner != "" {
		fmt.Printf("  winner: %s\n", snap.Winner)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

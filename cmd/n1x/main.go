// Package main starts the N1X room server and handles termination.
//
// The process owns every live room: it serializes intents per room, persists
// room state and fans events out over WebSocket.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	n1xcmd "github.com/louisbranch/n1x/internal/cmd/n1x"
)

func main() {
	cfg, err := n1xcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[N1X] ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := n1xcmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}

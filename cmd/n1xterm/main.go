// Package main starts the N1X terminal client.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	termcmd "github.com/louisbranch/n1x/internal/cmd/n1xterm"
)

func main() {
	cfg, err := termcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[N1XTERM] ")
	log.SetOutput(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := termcmd.Run(ctx, cfg, os.Stdin, os.Stdout); err != nil {
		log.Fatalf("terminal: %v", err)
	}
}

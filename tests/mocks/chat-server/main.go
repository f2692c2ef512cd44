// Package main runs the in-process test chat server as a standalone
// process, for trying the carechat CLI without the real backend.
package main

import (
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/inercia/carechat/internal/chattest"
)

var (
	addr    string
	verbose bool
)

func main() {
	flag.StringVar(&addr, "addr", "127.0.0.1:8000", "Address to listen on")
	flag.BoolVar(&verbose, "verbose", false, "Enable verbose logging to stderr")
	flag.Parse()

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	logger.Info("mock chat server listening", "addr", addr)
	if err := http.ListenAndServe(addr, chattest.NewHandler(logger)); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

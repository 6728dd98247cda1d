// Package app provides the handbook RAG server application.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kart-io/handbook-rag/cmd/handbook-rag/app/options"
	handbooksvc "github.com/kart-io/handbook-rag/internal/handbook"
	"github.com/kart-io/handbook-rag/pkg/infra/app"
)

// commandDesc is the description of the command.
const commandDesc = `Handbook RAG Service

Answers questions about university module handbooks and study program web pages.

This server provides:
  - Semantic search across per-program namespaces (Milvus or in-memory)
  - Context assembly with per-module caps and a character budget
  - Answers in German or English from an OpenAI-compatible or Ollama chat model
  - Hot reload of record files, query caching and a chat log`

// NewApp creates and returns a new App object with default parameters.
func NewApp() *app.App {
	opts := options.NewServerOptions()
	return app.NewApp(
		app.WithName(handbooksvc.Name),
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithRunFunc(run(opts)),
	)
}

// run contains the main logic for initializing and running the server.
func run(opts *options.ServerOptions) app.RunFunc {
	return func() error {
		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		ctx := setupSignalContext()

		server, err := cfg.NewServer(ctx)
		if err != nil {
			return fmt.Errorf("failed to create server: %w", err)
		}

		return server.Run(ctx)
	}
}

// setupSignalContext returns a context that is cancelled on SIGINT or SIGTERM.
// A second signal exits immediately.
func setupSignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		cancel()
		<-c
		os.Exit(1)
	}()
	return ctx
}

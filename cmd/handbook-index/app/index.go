// Package app provides the handbook indexing application.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kart-io/handbook-rag/cmd/handbook-index/app/options"
	handbooksvc "github.com/kart-io/handbook-rag/internal/handbook"
	"github.com/kart-io/handbook-rag/pkg/infra/app"
)

const commandDesc = `Handbook Indexer

Embeds every handbook and web record and upserts it into the vector index.
Each record is stored in the namespace it was loaded from; re-running the
indexer replaces existing vectors with the same id.`

// NewApp creates the indexing application.
func NewApp() *app.App {
	opts := options.NewIndexOptions()
	return app.NewApp(
		app.WithName(handbooksvc.IndexerName),
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithRunFunc(run(opts)),
	)
}

func run(opts *options.IndexOptions) app.RunFunc {
	return func() error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		report, err := opts.Config().Run(ctx)
		handbooksvc.PrintReport(report)
		if err != nil {
			return fmt.Errorf("indexing failed: %w", err)
		}
		return nil
	}
}

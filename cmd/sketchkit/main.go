// Package main contains sketchkit
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pomerium/sketchkit/internal/log"
	_ "github.com/pomerium/sketchkit/pkg/blobstore/fs"
	_ "github.com/pomerium/sketchkit/pkg/blobstore/inmemory"
	_ "github.com/pomerium/sketchkit/pkg/blobstore/kv"
	"github.com/pomerium/sketchkit/pkg/cmd/sketchkit"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sketchkit.BuildRootCmd().ExecuteContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("cmd/sketchkit")
	}
}

// Example: Bastion as a Forge extension with API routes.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/xraph/forge"

	"github.com/xraph/bastion/cache"
	bastionext "github.com/xraph/bastion/extension"
	"github.com/xraph/bastion/metrics"
	"github.com/xraph/bastion/store/memory"
)

func main() {
	s := memory.New()

	app := forge.New(
		forge.WithExtensions(
			bastionext.New(
				bastionext.WithStore(s),
				bastionext.WithCache(cache.NewMemory()),
				bastionext.WithPlugin(metrics.New(nil)),
				bastionext.WithLogger(slog.Default()),
				bastionext.WithTokenSecrets(os.Getenv("ACCESS_SECRET"), os.Getenv("REFRESH_SECRET")),
			),
		),
	)

	if err := app.Start(context.Background()); err != nil {
		log.Fatal(err)
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dmitrijs2005/idgate/internal/credctl"
	"github.com/dmitrijs2005/idgate/internal/flagx"
	"github.com/dmitrijs2005/idgate/internal/server"
	"github.com/dmitrijs2005/idgate/internal/server/config"
	"github.com/dmitrijs2005/idgate/internal/server/repositories/credentials"
)

func main() {
	ctx := context.Background()

	open := func(ctx context.Context) (credentials.Repository, func() error, error) {
		cfg, err := config.LoadConfig()
		if err != nil {
			return nil, nil, err
		}
		return server.OpenCredentialStore(ctx, cfg)
	}

	app := credctl.NewApp(open, os.Stdout, os.Stderr)
	if err := app.Run(ctx, flagx.Positional(os.Args[1:])); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, credctl.ErrUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

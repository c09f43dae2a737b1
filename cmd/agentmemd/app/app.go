// Package app wires the agentmemd command: options, signal-driven run loop,
// and the generic Cobra/Viper bootstrap in pkg/infra/app.
package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/kart-io/agentmem/cmd/agentmemd/app/options"
	appinfra "github.com/kart-io/agentmem/pkg/infra/app"
)

// NewApp builds the agentmemd cobra command.
func NewApp() *appinfra.App {
	opts := options.NewServerOptions()

	return appinfra.NewApp(
		appinfra.WithName("agentmemd"),
		appinfra.WithShortDescription("Conversational memory engine daemon"),
		appinfra.WithDescription("agentmemd builds the episodic and profile memory engine's resource "+
			"graph from configuration and runs it until signaled to stop."),
		appinfra.WithOptions(opts),
		appinfra.WithRunFunc(run(opts)),
	)
}

func run(opts *options.ServerOptions) appinfra.RunFunc {
	return func() error {
		if err := opts.Log.Init(); err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		server, err := NewServer(ctx, opts)
		if err != nil {
			return err
		}

		return server.Run(ctx)
	}
}

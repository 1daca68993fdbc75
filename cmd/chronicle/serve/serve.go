// Package servecmder provides the serve command for running the API server.
package servecmder

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/chronicle/api"
	"github.com/papercomputeco/chronicle/cmd/chronicle/project"
	"github.com/papercomputeco/chronicle/pkg/config"
	"github.com/papercomputeco/chronicle/pkg/logger"
)

type ServeCommander struct {
	listen   string
	maxTicks int
	noWatch  bool
}

const serveLongDesc string = `Run the chronicle API server for a project.

Serves the HTTP API, Prometheus metrics on /metrics and an MCP endpoint on
/mcp exposing the world to agents.

Engine options in config.toml are watched while serving. Edits apply from
the next tick; an edit that fails validation is logged and ignored.

Examples:
  chronicle serve
  chronicle serve --listen :9000
  CHRONICLE_EVENTS_PROVIDER=kafka chronicle serve`

const serveShortDesc string = "Run the API server"

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagAPIListen, &cmder.listen)
	cmd.Flags().IntVar(&cmder.maxTicks, "max-ticks", 20, "Most ticks a single API request may run")
	cmd.Flags().BoolVar(&cmder.noWatch, "no-watch", false, "Do not apply config.toml edits while serving")
	project.AddFlags(cmd)

	return cmd
}

func (c *ServeCommander) run(cmd *cobra.Command) error {
	debug, _ := cmd.Flags().GetBool("debug")
	p, err := project.OpenWithLogger(cmd, logger.NewLoggerWithWriters(debug, cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	defer p.Close()

	// config.toml and CHRONICLE_API_LISTEN apply unless --listen was given.
	listen := c.listen
	if !cmd.Flags().Changed(config.Flags[config.FlagAPIListen].Name) && p.Config.API.Listen != "" {
		listen = p.Config.API.Listen
	}

	server, err := api.NewServer(api.Config{
		ListenAddr: listen,
		MaxTicks:   c.maxTicks,
	}, p.Engine, p.Logger)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	errChan := make(chan error, 2)

	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	if !c.noWatch {
		go func() {
			if err := p.Engine.WatchConfig(ctx, p.Configer); err != nil {
				errChan <- fmt.Errorf("config watcher error: %w", err)
			}
		}()
	}

	select {
	case err := <-errChan:
		return errors.Join(err, server.Shutdown())
	case <-ctx.Done():
		p.Logger.Info("shutting down", zap.Error(context.Cause(ctx)))
		return server.Shutdown()
	}
}

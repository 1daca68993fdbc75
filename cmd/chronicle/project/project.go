// Package project opens the chronicle project a command runs against,
// resolving configuration through flags, environment and config.toml.
package project

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/chronicle/pkg/config"
	"github.com/papercomputeco/chronicle/pkg/engine"
	"github.com/papercomputeco/chronicle/pkg/logger"
)

// Project is an open project for the duration of one command.
type Project struct {
	Engine   *engine.Engine
	Configer *config.Configer
	Config   *config.Config
	Logger   *zap.Logger
}

// AddFlags registers the storage, vector, embedding, generator and event
// flags on cmd.
func AddFlags(cmd *cobra.Command) {
	config.AddFlags(cmd, config.Flags, config.ProjectFlags)
}

// Resolve loads the effective configuration for cmd without opening the
// project. Precedence is flag, then CHRONICLE_ environment, then
// config.toml, then defaults.
func Resolve(cmd *cobra.Command) (*config.Configer, *config.Config, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")

	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	if cfger.Dir() == "" {
		return nil, nil, errors.New("no .chronicle directory found; run chronicle init")
	}

	v, err := config.InitViper(configDir)
	if err != nil {
		return nil, nil, err
	}
	config.BindRegisteredFlags(v, cmd, config.Flags, config.ProjectFlags)

	cfg, err := config.FromViper(v)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	return cfger, cfg, nil
}

// Open resolves configuration for cmd and opens the project's engine. Logs
// go to the command's stderr so they stay out of piped output.
func Open(cmd *cobra.Command) (*Project, error) {
	debug, _ := cmd.Flags().GetBool("debug")
	return OpenWithLogger(cmd, logger.NewPrettyLogger(debug, cmd.ErrOrStderr()))
}

// OpenWithLogger is Open with a caller-supplied logger.
func OpenWithLogger(cmd *cobra.Command, log *zap.Logger) (*Project, error) {
	cfger, cfg, err := Resolve(cmd)
	if err != nil {
		_ = log.Sync()
		return nil, err
	}

	eng, err := engine.Open(cmd.Context(), engine.Options{
		Dir:    cfger.Dir(),
		Config: cfg,
		Logger: log,
	})
	if err != nil {
		_ = log.Sync()
		return nil, fmt.Errorf("opening project: %w", err)
	}

	return &Project{
		Engine:   eng,
		Configer: cfger,
		Config:   cfg,
		Logger:   log,
	}, nil
}

// Close closes the engine and flushes the logger.
func (p *Project) Close() error {
	err := p.Engine.Close()
	_ = p.Logger.Sync()
	return err
}

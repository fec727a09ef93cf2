package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/graphflow/internal/config"
	"github.com/vk/graphflow/internal/ctxlog"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW   io.Writer
	logger *slog.Logger
	model  *config.Model
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance with its own isolated logger and a decoded run
// file model.
func NewApp(outW io.Writer, appConfig *Config) *App {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	model, err := config.Load(ctx, appConfig.RunPath)
	if err != nil {
		// A failure to load config is a fatal startup error.
		panic(fmt.Errorf("failed to load configuration: %w", err))
	}
	logger.Debug("Run file loaded.", "solvers", len(model.Solvers))

	return &App{
		outW:   outW,
		logger: logger,
		model:  model,
	}
}

// Model returns the decoded run file. This is primarily for testing.
func (a *App) Model() *config.Model {
	return a.model
}

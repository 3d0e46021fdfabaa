package main

import (
	"context"
	"fmt"
	"os"

	"github.com/mattjoyce/cinema-bridge/internal/api"
	"github.com/mattjoyce/cinema-bridge/internal/bridge"
	"github.com/mattjoyce/cinema-bridge/internal/command"
	"github.com/mattjoyce/cinema-bridge/internal/config"
	"github.com/mattjoyce/cinema-bridge/internal/dispatch"
	"github.com/mattjoyce/cinema-bridge/internal/journal"
	"github.com/mattjoyce/cinema-bridge/internal/request"
)

// resolveConfigPath returns path, or the discovered config location when path
// is empty.
func resolveConfigPath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	discovered, err := config.Discover()
	if err != nil {
		return "", fmt.Errorf("failed to discover config: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Using discovered config: %s\n", discovered)
	return discovered, nil
}

func strategyFromConfig(cfg *config.Config) dispatch.Strategy {
	h := cfg.Host
	return dispatch.Strategy{
		Kind: dispatch.Kind(cfg.Dispatch.Strategy),
		Host: dispatch.Host{
			Package:  h.Package,
			Service:  h.Service,
			Activity: h.Activity,
			Action:   h.Action,
			User:     h.User,
			Shell:    h.Shell,
			Extras: dispatch.Extras{
				Path:       h.Extras.Path,
				Arguments:  h.Extras.Arguments,
				WorkDir:    h.Extras.WorkDir,
				Background: h.Extras.Background,
			},
		},
	}
}

func domainFromConfig(cfg *config.Config) request.Domain {
	return request.DefaultDomain().WithProfiles(cfg.Validation.Profiles)
}

func newDispatcher(cfg *config.Config) *dispatch.Dispatcher {
	return dispatch.New(dispatch.NewExecRunner(), dispatch.Options{
		AM:         cfg.Dispatch.AM,
		PM:         cfg.Dispatch.PM,
		Launcher:   cfg.Dispatch.Launcher,
		AckMessage: cfg.Channel.AckMessage,
	})
}

// buildHandler wires the configured bridge around d. rec may be nil.
func buildHandler(cfg *config.Config, d bridge.Dispatcher, rec bridge.Recorder) (*bridge.Handler, error) {
	return bridge.NewHandler(bridge.Options{
		Method:  cfg.Channel.Method,
		Aliases: cfg.Channel.Aliases,
		Target: command.Target{
			ScriptPath: cfg.Script.Path,
			WorkDir:    cfg.Script.WorkDir,
		},
		Strategy: strategyFromConfig(cfg),
		Domain:   domainFromConfig(cfg),
		Policy:   request.Policy(cfg.Validation.EnumPolicy),
		Recorder: rec,
	}, d)
}

// openJournal opens the journal when it is enabled. A nil store and nil
// error mean the journal is off.
func openJournal(ctx context.Context, cfg *config.Config) (*journal.Store, error) {
	if !cfg.Journal.Enabled {
		return nil, nil
	}
	store, err := journal.Open(ctx, cfg.Journal.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal %s: %w", cfg.Journal.Path, err)
	}
	return store, nil
}

func apiConfigFrom(cfg *config.Config) api.Config {
	return api.Config{
		Listen:  cfg.API.Listen,
		APIKey:  cfg.API.Auth.APIKey,
		Channel: cfg.Channel.Name,
		Method:  cfg.Channel.Method,
		Aliases: cfg.Channel.Aliases,
		Domain:  domainFromConfig(cfg),
	}
}

package main

import (
	"fmt"
	"os"

	"github.com/nvandessel/ab-test/internal/abtest"
	"github.com/nvandessel/ab-test/internal/config"
	"github.com/nvandessel/ab-test/internal/experiment"
	"github.com/nvandessel/ab-test/internal/logging"
	"github.com/nvandessel/ab-test/internal/store"
	"github.com/spf13/cobra"
)

// session is one mounted resolver plus the resources it owns.
type session struct {
	cfg      *config.Config
	carrier  *experiment.Carrier
	store    store.Store
	trace    *logging.AssignmentLog
	resolver *abtest.Resolver
}

// loadConfig reads the config selected by the --root and --config flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	root, _ := cmd.Flags().GetString("root")
	path, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(root, path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// openSession loads config and mounts an Unready resolver over the configured store.
func openSession(cmd *cobra.Command) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return mount(cmd, cfg)
}

func mount(cmd *cobra.Command, cfg *config.Config) (*session, error) {
	s, err := cfg.OpenStore()
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	logger := logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr())
	trace := logging.NewAssignmentLog(cfg.Storage.Dir, cfg.Logging.Level)

	carrier := cfg.Carrier()
	r, err := abtest.New(carrier, s,
		abtest.WithLogger(logger),
		abtest.WithAssignmentLog(trace),
	)
	if err != nil {
		trace.Close()
		s.Close()
		return nil, err
	}

	return &session{cfg: cfg, carrier: carrier, store: s, trace: trace, resolver: r}, nil
}

func (s *session) Close() {
	s.trace.Close()
	if err := s.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to close store: %v\n", err)
	}
}

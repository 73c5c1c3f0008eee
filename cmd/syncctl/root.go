package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"example.com/activitysync/internal/app"
	"example.com/activitysync/internal/config"
	"example.com/activitysync/internal/logging"
)

// cli carries state shared by every subcommand.
type cli struct {
	out    io.Writer
	v      *viper.Viper
	cfg    config.Config
	logger *zap.Logger
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{out: out, v: config.New(), logger: zap.NewNop()}

	root := &cobra.Command{
		Use:           "syncctl",
		Short:         "Operate external activity syncs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			c.cfg = config.FromViper(c.v)
			logger, err := logging.New(c.cfg.LogLevel, c.cfg.LogDevelopment)
			if err != nil {
				return err
			}
			c.logger = logger.Named("syncctl")
			return nil
		},
	}
	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.String("storage", config.StoragePostgres, "storage backend (postgres or memory)")
	flags.String("postgres-url", "", "postgres connection string")
	flags.String("log-level", "warn", "log level")
	for key, name := range map[string]string{
		"STORAGE":      "storage",
		"POSTGRES_URL": "postgres-url",
		"LOG_LEVEL":    "log-level",
	} {
		_ = c.v.BindPFlag(key, flags.Lookup(name))
	}

	root.AddCommand(
		c.migrateCmd(),
		c.dispatchCmd(),
		c.syncCmd(),
		c.autolinkCmd(),
		c.actualsCmd(),
		c.tokenCmd(),
	)
	return root
}

// services opens the configured backend. The caller closes the returned backend.
func (c *cli) services(ctx context.Context) (*app.Backend, app.Services, error) {
	backend, err := app.OpenBackend(ctx, c.cfg, c.logger)
	if err != nil {
		return nil, app.Services{}, err
	}
	return backend, app.NewServices(c.cfg, backend, app.Providers(c.cfg), c.logger), nil
}

func (c *cli) print(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseAfter(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("invalid --after %q: want RFC3339", value)
	}
	return &t, nil
}

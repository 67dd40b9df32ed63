package main

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"clinic/backend/internal/config"
)

const serviceName = "clinic-server"

// cli carries what every subcommand needs once the root command has loaded
// configuration.
type cli struct {
	cfg config.Config
	log *slog.Logger
}

func main() {
	c := &cli{}
	root := &cobra.Command{
		Use:           serviceName,
		Short:         "Clinic scheduling and availability server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config load failed: %w", err)
			}
			c.cfg = cfg
			c.log = newLogger(cfg.LogLevel)
			slog.SetDefault(c.log)
			return nil
		},
	}

	root.AddCommand(c.serveCmd())
	root.AddCommand(c.remindCmd())
	root.AddCommand(c.migrateCmd())
	root.AddCommand(c.doctorCmd())

	if err := root.Execute(); err != nil {
		log := c.log
		if log == nil {
			log = newLogger("info")
		}
		log.Error("command failed", slog.Any("err", err))
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(level)})).With(
		slog.String("service", serviceName),
	)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func databaseLogArgs(databaseURL string) []any {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return []any{slog.String("db_url", "invalid")}
	}
	name := strings.TrimPrefix(u.Path, "/")
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "default"
	}
	if host == "" {
		host = "unknown"
	}
	if name == "" {
		name = "unknown"
	}
	return []any{
		slog.String("db_host", host),
		slog.String("db_port", port),
		slog.String("db_name", name),
	}
}

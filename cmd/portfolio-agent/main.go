package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/donghwi-dev/portfolio-agent/internal/pathutil"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "portfolio-agent",
		Short:         "Chat assistant daemon for the portfolio site",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initConfig(); err != nil {
				return err
			}
			setupLogging()
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: ./config.yaml)")

	root.AddCommand(newServeCmd())
	root.AddCommand(newApproveCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() error {
	viper.SetDefault("server.addr", ":8787")
	viper.SetDefault("server.task_timeout", "5m")
	viper.SetDefault("server.sweep_interval", "5m")
	viper.SetDefault("server.prompt_max_age", "5m")
	viper.SetDefault("server.session_ttl", "1h")

	viper.SetDefault("backend.base_url", "")
	viper.SetDefault("backend.health_timeout", "8s")
	viper.SetDefault("backend.stream_timeout", "60s")

	viper.SetDefault("db.driver", "sqlite")
	viper.SetDefault("db.dsn", "~/.portfolio-agent/agent.db")
	viper.SetDefault("db.sqlite.wal", true)
	viper.SetDefault("db.sqlite.busy_timeout_ms", 5000)
	viper.SetDefault("db.sqlite.foreign_keys", true)

	viper.SetDefault("audit.jsonl_path", "")
	viper.SetDefault("audit.rotate_max_bytes", int64(0))
	viper.SetDefault("audit.sqlite_dsn", "")

	viper.SetDefault("content.dir", "")
	viper.SetDefault("log.level", "info")

	viper.SetEnvPrefix("PORTFOLIO_AGENT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if strings.TrimSpace(configPath) != "" {
		viper.SetConfigFile(pathutil.ExpandHomePath(configPath))
		return viper.ReadInConfig()
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath(pathutil.ExpandHomePath("~/.portfolio-agent"))
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return err
	}
	return nil
}

func setupLogging() {
	level := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(viper.GetString("log.level"))) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/donghwi-dev/portfolio-agent/approval"
	"github.com/donghwi-dev/portfolio-agent/backend"
	"github.com/donghwi-dev/portfolio-agent/blog"
	"github.com/donghwi-dev/portfolio-agent/db"
	"github.com/donghwi-dev/portfolio-agent/fallback"
	"github.com/donghwi-dev/portfolio-agent/internal/clifmt"
	"github.com/donghwi-dev/portfolio-agent/internal/pathutil"
	"github.com/donghwi-dev/portfolio-agent/server"
	"github.com/donghwi-dev/portfolio-agent/session"
	"github.com/donghwi-dev/portfolio-agent/site"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := slog.Default()

	deps := server.Deps{
		Registry: approval.NewRegistry(log),
		Fallback: fallback.New(),
		Sessions: session.NewManager(),
		Log:      log,
	}

	if auditor, err := auditorFromViper(log); err != nil {
		return fmt.Errorf("init audit: %w", err)
	} else if auditor != nil {
		deps.Audit = auditor
	}

	if baseURL := strings.TrimSpace(viper.GetString("backend.base_url")); baseURL != "" {
		client := backend.NewClient(baseURL)
		client.HealthTimeout = viper.GetDuration("backend.health_timeout")
		client.StreamTimeout = viper.GetDuration("backend.stream_timeout")
		client.Log = log
		deps.Backend = client
	} else {
		log.Info("backend_disabled", "reason", "no base_url configured")
	}

	if dsn := strings.TrimSpace(viper.GetString("db.dsn")); dsn != "" {
		gdb, err := db.Open(ctx, dbConfigFromViper())
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		if err := db.AutoMigrate(gdb); err != nil {
			return fmt.Errorf("migrate db: %w", err)
		}
		deps.Posts = blog.NewStore(gdb)
	}

	if dir := strings.TrimSpace(viper.GetString("content.dir")); dir != "" {
		deps.Content = site.NewLibrary(pathutil.ExpandHomePath(dir))
	}

	cfg := server.Config{
		Addr:          viper.GetString("server.addr"),
		TaskTimeout:   viper.GetDuration("server.task_timeout"),
		SweepInterval: viper.GetDuration("server.sweep_interval"),
		PromptMaxAge:  viper.GetDuration("server.prompt_max_age"),
		SessionTTL:    viper.GetDuration("server.session_ttl"),
	}

	srv := server.New(cfg, deps)
	defer srv.Close()
	srv.Start(ctx)

	fmt.Println(clifmt.Headerf("portfolio-agent listening on %s", cfg.Addr))
	if deps.Backend != nil {
		fmt.Println(clifmt.Key("backend:"), clifmt.Dim(viper.GetString("backend.base_url")))
	} else {
		fmt.Println(clifmt.Dim("backend: disabled (fallback responses only)"))
	}
	return srv.ListenAndServe(ctx)
}

func dbConfigFromViper() db.Config {
	cfg := db.DefaultConfig(viper.GetString("db.dsn"))
	cfg.Driver = viper.GetString("db.driver")
	cfg.SQLite.WAL = viper.GetBool("db.sqlite.wal")
	cfg.SQLite.BusyTimeoutMs = viper.GetInt("db.sqlite.busy_timeout_ms")
	cfg.SQLite.ForeignKeys = viper.GetBool("db.sqlite.foreign_keys")
	cfg.Pool.MaxOpenConns = viper.GetInt("db.pool.max_open_conns")
	cfg.Pool.MaxIdleConns = viper.GetInt("db.pool.max_idle_conns")
	cfg.Pool.ConnMaxLifetime = viper.GetDuration("db.pool.conn_max_lifetime")
	return cfg
}

// auditorFromViper builds the approval audit pipeline. Both sinks are
// optional; with neither configured there is no auditor at all.
func auditorFromViper(log *slog.Logger) (*approval.Auditor, error) {
	var jsonl *approval.JSONLSink
	var store *approval.DecisionLog

	if path := strings.TrimSpace(viper.GetString("audit.jsonl_path")); path != "" {
		sink, err := approval.NewJSONLSink(pathutil.ExpandHomePath(path), viper.GetInt64("audit.rotate_max_bytes"))
		if err != nil {
			return nil, err
		}
		jsonl = sink
	}
	if dsn := strings.TrimSpace(viper.GetString("audit.sqlite_dsn")); dsn != "" {
		dl, err := approval.NewDecisionLog(pathutil.ExpandHomePath(dsn))
		if err != nil {
			return nil, err
		}
		store = dl
	}
	if jsonl == nil && store == nil {
		return nil, nil
	}
	return approval.NewAuditor(jsonl, store, log), nil
}

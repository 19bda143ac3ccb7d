// Command cbotd is the trading-task orchestrator daemon: it loads
// configuration and any existing snapshot, starts the task runtime (the
// cron loop, the condition scanner, the registered job table) and the two
// control servers (unary TCP, streaming WebSocket), then blocks until
// SIGINT/SIGTERM, at which point it shuts everything down in order and
// writes a final snapshot.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/wpolak/cbotgo/internal/config"
	"github.com/wpolak/cbotgo/internal/eventbus"
	"github.com/wpolak/cbotgo/internal/exchange"
	"github.com/wpolak/cbotgo/internal/gateway"
	"github.com/wpolak/cbotgo/internal/jobs"
	"github.com/wpolak/cbotgo/internal/ledger"
	ledgerfile "github.com/wpolak/cbotgo/internal/ledger/file"
	ledgerpg "github.com/wpolak/cbotgo/internal/ledger/pg"
	"github.com/wpolak/cbotgo/internal/mailer"
	"github.com/wpolak/cbotgo/internal/memstore"
	"github.com/wpolak/cbotgo/internal/snapshot"
	"github.com/wpolak/cbotgo/internal/taskmanager"

	"os/signal"
	"syscall"
)

// version is the build identifier surfaced by STATS/get_stats.
const version = "cbotgo-dev"

type serverOptions struct {
	verbosity  int
	foreground bool
	bind       string
	user       string
	datafile   string
	pidfile    string
	configFile string
	ledgerDSN  string
	ledgerFile string
	s3Bucket   string
	s3Prefix   string
}

func main() {
	opts := &serverOptions{}

	root := &cobra.Command{
		Use:   "cbotd",
		Short: "cbotgo trading-task orchestrator daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts)
		},
	}

	root.PersistentFlags().IntVarP(&opts.verbosity, "verbosity", "v", 1, "log verbosity (0=error,1=info,2=debug)")
	root.PersistentFlags().BoolVarP(&opts.foreground, "foreground", "f", true, "run in the foreground (daemonization is out of core scope; always effectively true)")
	root.PersistentFlags().StringVar(&opts.bind, "bind", "", "control channel bind address, addr[:port] (default 0.0.0.0:2268; websocket stream binds port+1)")
	root.PersistentFlags().StringVar(&opts.user, "user", "", "user[:group] to drop privileges to (parsed, not enforced — privilege drop is out of core scope)")
	root.PersistentFlags().StringVar(&opts.datafile, "datafile", "", "snapshot file path (overrides the config value when set)")
	root.PersistentFlags().StringVar(&opts.pidfile, "pidfile", "", "pidfile path (written, not used for single-instance locking)")
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "explicit config file path, bypassing the conventional search")
	root.PersistentFlags().StringVar(&opts.ledgerDSN, "ledger-dsn", "", "optional Postgres DSN for the fill ledger (defaults to a file-backed ledger)")
	root.PersistentFlags().StringVar(&opts.ledgerFile, "ledger-file", "cbot-ledger.jsonl", "file-backed ledger path, used when --ledger-dsn is not set")
	root.PersistentFlags().StringVar(&opts.s3Bucket, "s3-archive-bucket", "", "optional S3 bucket for off-box snapshot archival")
	root.PersistentFlags().StringVar(&opts.s3Prefix, "s3-archive-prefix", "cbot/", "key prefix for S3 snapshot archival")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(opts *serverOptions) error {
	setupLogging(opts.verbosity)

	cfg, err := loadConfig(opts.configFile)
	if err != nil {
		slog.Error("cbotd: config load failed", "error", err)
		os.Exit(1)
	}

	if opts.bind != "" {
		cfg.Server.Bind = opts.bind
	}
	if opts.datafile != "" {
		cfg.Server.Datafile = opts.datafile
	}
	if opts.pidfile != "" {
		cfg.Server.Pidfile = opts.pidfile
	}
	if opts.user != "" {
		slog.Warn("cbotd: --user privilege drop is not enforced in this build", "user", opts.user)
	}
	if cfg.Server.Pidfile != "" {
		if err := os.WriteFile(cfg.Server.Pidfile, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
			slog.Warn("cbotd: failed to write pidfile", "path", cfg.Server.Pidfile, "error", err)
		}
	}

	tcpAddr, wsAddr, err := splitControlAddrs(cfg.Server.Bind)
	if err != nil {
		slog.Error("cbotd: invalid --bind address", "bind", cfg.Server.Bind, "error", err)
		os.Exit(1)
	}

	bus := eventbus.New()
	store := memstore.New(bus)
	exchanges := exchange.NewRegistry(func(id string) (exchange.Exchange, error) {
		return exchange.NewFake(id), nil
	})

	mail := buildMailer(cfg)
	led := buildLedger(opts)
	defer led.Close()

	deps := jobs.Deps{Store: store, Bus: bus, Exchanges: exchanges, Mail: mail, Ledger: led}
	registry := jobs.NewRegistry()
	jobs.RegisterAll(registry, deps)

	manager := taskmanager.New(bus, store, registry, deps, version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	archiver := buildArchiver(ctx, opts)
	snapStore := snapshot.New(cfg.Server.Datafile, store, manager, archiver)
	snapStore.Load(ctx)

	manager.Run(ctx)
	savegameSub := snapStore.RegisterSavegameListener(ctx, bus)
	defer bus.Unsubscribe(savegameSub)

	tcpServer := gateway.NewTCPServer(manager)
	wsServer := gateway.NewStreamServer(manager, bus)

	errCh := make(chan error, 2)
	go func() { errCh <- tcpServer.ListenAndServe(ctx, tcpAddr) }()
	go func() { errCh <- wsServer.ListenAndServe(ctx, wsAddr) }()

	select {
	case <-ctx.Done():
		slog.Info("cbotd: shutdown signal received")
	case err := <-errCh:
		if err != nil {
			slog.Error("cbotd: control server failed", "error", err)
			os.Exit(1)
		}
	}

	stop()
	tcpServer.Close()
	exchanges.CloseAll()
	manager.Stop()
	snapStore.Save(context.Background())

	if cfg.Server.Pidfile != "" {
		os.Remove(cfg.Server.Pidfile)
	}

	slog.Info("cbotd: clean shutdown")
	return nil
}

func setupLogging(verbosity int) {
	level := slog.LevelInfo
	switch {
	case verbosity <= 0:
		level = slog.LevelError
	case verbosity == 1:
		level = slog.LevelInfo
	default:
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func loadConfig(explicit string) (*config.Config, error) {
	if explicit != "" {
		return config.LoadFile(explicit)
	}
	return config.Load()
}

func buildMailer(cfg *config.Config) mailer.Mailer {
	if cfg.Mail.Server == "" {
		return mailer.NoOp{}
	}
	return mailer.New(mailer.Config{
		Server:      cfg.Mail.Server,
		Port:        cfg.Mail.Port,
		User:        cfg.Mail.User,
		Pass:        cfg.Mail.Pass,
		Sender:      cfg.Mail.Sender,
		Recipient:   cfg.Mail.Recipient,
		SubjectDesc: cfg.Mail.SubjectDesc,
	})
}

func buildLedger(opts *serverOptions) ledger.Ledger {
	if opts.ledgerDSN != "" {
		store, err := ledgerpg.Open(opts.ledgerDSN)
		if err != nil {
			slog.Warn("cbotd: postgres ledger unavailable, falling back to file ledger", "error", err)
		} else {
			return store
		}
	}
	store, err := ledgerfile.New(opts.ledgerFile)
	if err != nil {
		slog.Warn("cbotd: file ledger unavailable, fills will not be recorded", "error", err)
		return noopLedger{}
	}
	return store
}

type noopLedger struct{}

func (noopLedger) RecordFill(ctx context.Context, f ledger.Fill) error     { return nil }
func (noopLedger) ListFills(ctx context.Context, limit int) ([]ledger.Fill, error) { return nil, nil }
func (noopLedger) Close() error                                            { return nil }

func buildArchiver(ctx context.Context, opts *serverOptions) snapshot.Archiver {
	if opts.s3Bucket == "" {
		return nil
	}
	archiver, err := snapshot.NewS3Archiver(ctx, opts.s3Bucket, opts.s3Prefix)
	if err != nil {
		slog.Warn("cbotd: s3 archiver unavailable, snapshots will stay local only", "error", err)
		return nil
	}
	return archiver
}

// splitControlAddrs returns the unary TCP bind address and the streaming
// WebSocket bind address (control_port + 1), per spec §6. An empty bind
// defaults to "0.0.0.0:2268".
func splitControlAddrs(bind string) (tcpAddr, wsAddr string, err error) {
	if bind == "" {
		bind = "0.0.0.0:2268"
	}
	host, portStr, err := net.SplitHostPort(bind)
	if err != nil {
		return "", "", err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", "", fmt.Errorf("invalid port %q: %w", portStr, err)
	}
	tcpAddr = net.JoinHostPort(host, strconv.Itoa(port))
	wsAddr = net.JoinHostPort(host, strconv.Itoa(port+1))
	return tcpAddr, wsAddr, nil
}

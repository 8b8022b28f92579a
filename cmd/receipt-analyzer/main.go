package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/zombor/receipt-analyzer/internal/config"
	"github.com/zombor/receipt-analyzer/internal/receipt"
	"github.com/zombor/receipt-analyzer/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("receipt-analyzer")
	var (
		port          = fs.IntLong("port", 8080, "HTTP server port")
		usageDB       = fs.StringLong("usage-db", "", "Usage ledger database file path (optional, disabled when empty)")
		maxConcurrent = fs.IntLong("max-concurrent", 4, "Maximum number of analyses running at once")
		authUser      = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass      = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		shutdownWait  = fs.DurationLong("shutdown-timeout", 30*time.Second, "Time allowed for in-flight requests on shutdown")
		modelFlags    = config.RegisterModelFlags(fs)
		logFlags      = config.RegisterLogFlags(fs)
		showVersion   = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix(config.EnvVarPrefix),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	logger, err := logFlags.Logger(os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	if err := run(options{
		port:          *port,
		usageDB:       *usageDB,
		maxConcurrent: *maxConcurrent,
		basicAuth:     receipt.BasicAuth{Username: *authUser, Password: *authPass},
		shutdownWait:  *shutdownWait,
		model:         modelFlags,
		logger:        logger,
	}); err != nil {
		slog.Error("Exiting", "error", err)
		os.Exit(1)
	}
}

type options struct {
	port          int
	usageDB       string
	maxConcurrent int
	basicAuth     receipt.BasicAuth
	shutdownWait  time.Duration
	model         *config.ModelFlags
	logger        *slog.Logger
}

// run wires the server and blocks until it stops or a signal arrives
func run(opts options) error {
	prompt, err := scanning.LoadPrompt(*opts.model.PromptLang)
	if err != nil {
		return fmt.Errorf("loading prompt: %w", err)
	}

	ctx := context.Background()
	clientConfig := opts.model.ClientConfig()
	slog.Info("Initializing model backend...", "backend", clientConfig.Backend, "model", opts.model.ModelName())
	backend, err := scanning.NewModelClient(ctx, clientConfig)
	if err != nil {
		return fmt.Errorf("initializing model backend: %w", err)
	}
	defer backend.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := receipt.NewMetrics(registry)
	recorders := scanning.MultiRecorder{metrics}

	// The usage ledger is optional; without it nothing is persisted
	var db receipt.DB
	if opts.usageDB != "" {
		slog.Info("Initializing usage ledger...", "path", opts.usageDB)
		boltDB, err := receipt.NewBoltDB(opts.usageDB)
		if err != nil {
			return fmt.Errorf("initializing usage ledger: %w", err)
		}
		defer boltDB.Close()

		ledger := receipt.NewUsageLedger(boltDB, receipt.LedgerOptions{
			Backend: clientConfig.Backend,
			Model:   opts.model.ModelName(),
		}, metrics)
		defer ledger.Close()

		db = boltDB
		recorders = append(recorders, ledger)
	}

	analyzer := scanning.NewAnalyzerWithDeps(backend, prompt, nil, recorders, opts.logger)
	receiptService := receipt.NewService(analyzer, db, opts.maxConcurrent, metrics)
	server := receipt.NewServer(receiptService, opts.basicAuth, registry)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", opts.port)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(addr)
	}()

	slog.Info("Server started",
		"address", fmt.Sprintf("http://localhost%s", addr),
		"prompt_version", prompt.Version,
		"prompt_language", prompt.Language,
		"max_concurrent", opts.maxConcurrent,
	)
	if opts.basicAuth.Username != "" || opts.basicAuth.Password != "" {
		slog.Info("Basic auth enabled", "user", opts.basicAuth.Username)
	}

	// Wait for interrupt signal or a server failure
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serving http: %w", err)
		}
		return nil
	case sig := <-sigChan:
		slog.Info("Shutting down...", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.shutdownWait)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}

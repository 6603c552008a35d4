// Command toolhost runs the MCP tool-host server: it discovers provider
// executables in a tools directory, builds a registry from their `list`
// and `instructions` output, and serves newline-delimited JSON-RPC 2.0
// over stdin/stdout until stdin reaches EOF.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/toolhost-mcp/toolhost/internal/config"
	"github.com/toolhost-mcp/toolhost/internal/logger"
	"github.com/toolhost-mcp/toolhost/internal/mcp"
	"github.com/toolhost-mcp/toolhost/internal/observe"
	"github.com/toolhost-mcp/toolhost/internal/registry"
	"github.com/toolhost-mcp/toolhost/internal/runner"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		showVersion  = flag.Bool("version", false, "print the server version and exit")
		toolsDirFlag = flag.String("tools-dir", "", "directory of provider executables (overrides config/env)")
		configPath   = flag.String("config", "", "optional YAML config overlay file")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "toolhost: %v\n", err)
		return 1
	}
	if *toolsDirFlag != "" {
		cfg.ToolsDir = *toolsDirFlag
	}
	cfg.ToolsDir = config.ResolveToolsDir(cfg.ToolsDir)

	if *showVersion {
		fmt.Printf("%s %s\n", cfg.ServerName, cfg.ServerVersion)
		return 0
	}

	log, err := logger.Open(cfg.LogPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "toolhost: %v\n", err)
		return 1
	}
	defer log.Close()

	log.Info("starting " + cfg.String())

	var metrics mcp.Metrics
	var regMetrics registry.Metrics
	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		m, shutdown, err := observe.Init(cfg.ServerName, cfg.ServerVersion)
		if err != nil {
			log.Error("observe: init failed: " + err.Error())
		} else {
			metrics = m
			regMetrics = m
			defer func() { _ = shutdown(context.Background()) }()

			metricsSrv = observe.NewHealthServer(cfg.MetricsAddr)
			go func() {
				if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error("metrics server: " + err.Error())
				}
			}()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rnr := runner.New(runner.Config{
		PollInterval: cfg.PollInterval,
		DrainWindow:  cfg.DrainWindow,
	})

	reg, err := registry.Build(ctx, cfg.ToolsDir, rnr, registry.Config{
		ListTimeout: cfg.ListTimeout,
		Logger:      log,
		Metrics:     regMetrics,
	})
	if err != nil {
		log.Error("registry build failed: " + err.Error())
		fmt.Fprintf(os.Stderr, "toolhost: registry build failed: %v\n", err)
		return 1
	}
	log.Info(fmt.Sprintf("registry built: %d tool(s), %d listing error(s), %d duplicate(s)",
		len(reg.Definitions()), len(reg.ListingErrors()), len(reg.Duplicates())))

	dispatcher := mcp.New(reg, rnr, log, metrics, cfg.ServerName, cfg.ServerVersion, cfg.CallTimeout)

	if err := dispatcher.Serve(ctx, os.Stdin, os.Stdout); err != nil {
		log.Error("serve: " + err.Error())
		fmt.Fprintf(os.Stderr, "toolhost: %v\n", err)
		return 1
	}

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}

	log.Info("server stopped on stdin EOF")
	return 0
}

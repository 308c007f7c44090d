// Package main is the Kumitate CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kumitate/internal/cli"
	"github.com/hyperjump/kumitate/internal/compile"
	"github.com/hyperjump/kumitate/internal/config"
	"github.com/hyperjump/kumitate/internal/models"
	"github.com/hyperjump/kumitate/internal/orchestrator"
	"github.com/hyperjump/kumitate/internal/publish"
	"github.com/hyperjump/kumitate/internal/registry"
	"github.com/hyperjump/kumitate/internal/server"
	"github.com/hyperjump/kumitate/internal/watcher"
	"github.com/hyperjump/kumitate/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kumitate/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used, so that "kumitate server" from the project dir uses the
// project's config (including debug).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "compile":
		runCompile()
	case "status":
		runStatus()
	case "list":
		runList()
	case "seed":
		runSeed()
	case "version", "--version", "-v":
		fmt.Printf("kumitate version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	var watchSvc *watcher.Watcher
	if cfg.Watch.Enabled {
		orch := components.Orchestrator
		watchOpts := []watcher.Option{
			watcher.WithDebounce(time.Duration(cfg.Watch.DebounceMS) * time.Millisecond),
		}
		if debugMode {
			watchOpts = append(watchOpts, watcher.WithLogger(logger))
		}
		watchSvc = watcher.NewWatcher(cfg.Registry.Path, func() {
			if _, err := orch.Run(context.Background()); err != nil {
				if errors.Is(err, orchestrator.ErrInProgress) {
					return
				}
				logger.Warn("watch-triggered compile failed", zap.Error(err))
			}
		}, watchOpts...)
		if err := watchSvc.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
	}

	srv := server.NewServer(components.Registry, components.Orchestrator, &cfg.Server, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	if watchSvc != nil {
		watchSvc.Stop()
	}
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runCompile() {
	fs := flag.NewFlagSet("compile", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL (empty = run the pipeline directly)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, ok := parseOutputFormat(*outputFormat)
	if !ok {
		fmt.Printf("Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}

	if *serverURL != "" {
		compileViaHTTP(*serverURL, format)
		return
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	report, err := components.Orchestrator.Run(context.Background())
	if err != nil {
		var rejected *compile.RejectedError
		if errors.As(err, &rejected) {
			_ = cli.WriteViolations(os.Stderr, rejected.Violations, format)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Compile failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteReport(os.Stdout, report, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func compileViaHTTP(serverURL string, format cli.OutputFormat) {
	resp, err := http.Post(serverURL+"/api/v1/compile", "application/json", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var report orchestrator.Report
		if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
			fmt.Fprintf(os.Stderr, "Parse failed: %v\n", err)
			os.Exit(1)
		}
		if err := cli.WriteReport(os.Stdout, &report, format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case http.StatusUnprocessableEntity:
		var out struct {
			Violations []compile.Violation `json:"violations"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			fmt.Fprintf(os.Stderr, "Parse failed: %v\n", err)
			os.Exit(1)
		}
		_ = cli.WriteViolations(os.Stderr, out.Violations, format)
		os.Exit(1)
	case http.StatusConflict:
		fmt.Fprintln(os.Stderr, "A compile is already in progress; try again shortly.")
		os.Exit(1)
	default:
		b, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Compile failed (%d): %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", `server URL (use --server "" for direct registry access)`)
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, ok := parseOutputFormat(*outputFormat)
	if !ok {
		fmt.Printf("Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}

	if *serverURL != "" {
		resp, err := http.Get(*serverURL + "/api/v1/status")
		if err == nil {
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				b, _ := io.ReadAll(resp.Body)
				fmt.Fprintf(os.Stderr, "Status failed (%d): %s\n", resp.StatusCode, string(b))
				os.Exit(1)
			}
			if format == cli.OutputJSON {
				_, _ = io.Copy(os.Stdout, resp.Body)
				return
			}
			var out struct {
				Registry registry.Stats        `json:"registry"`
				State    string                `json:"state"`
				Version  publish.VersionHandle `json:"version"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				fmt.Fprintf(os.Stderr, "Parse failed: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("State:   %s\n", out.State)
			fmt.Printf("Version: %s\n", out.Version)
			_ = cli.WriteStats(os.Stdout, &out.Registry, format)
			return
		}
		// fall back to direct access when no server is reachable
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	reg, err := registry.Open(&cfg.Registry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open registry: %v\n", err)
		os.Exit(1)
	}
	defer reg.Close()

	stats, err := reg.Stats(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Stats failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteStats(os.Stdout, stats, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runList() {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, ok := parseOutputFormat(*outputFormat)
	if !ok {
		fmt.Printf("Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	reg, err := registry.Open(&cfg.Registry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open registry: %v\n", err)
		os.Exit(1)
	}
	defer reg.Close()

	defs, err := reg.List(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "List failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteDefinitions(os.Stdout, defs, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runSeed() {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	reg, err := registry.Open(&cfg.Registry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open registry: %v\n", err)
		os.Exit(1)
	}
	defer reg.Close()

	created, err := registry.Seed(context.Background(), reg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Seeded %d definition(s)\n", created)
	for _, def := range registry.SampleDefinitions() {
		fmt.Printf("  %s/%s: %s\n", def.Category, def.Name, cli.Truncate(def.Statement, 60))
	}
}

func parseOutputFormat(s string) (cli.OutputFormat, bool) {
	switch s {
	case "json":
		return cli.OutputJSON, true
	case "text", "":
		return cli.OutputText, true
	default:
		return cli.OutputText, false
	}
}

// Components holds initialized services.
type Components struct {
	Registry     registry.Registry
	Publisher    publish.Publisher
	Orchestrator *orchestrator.Orchestrator
}

func (c *Components) Close() {
	if c.Registry != nil {
		_ = c.Registry.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	reg, err := registry.Open(&cfg.Registry)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry: %w", err)
	}
	pub, err := publish.New(context.Background(), &cfg.Publisher)
	if err != nil {
		_ = reg.Close()
		return nil, fmt.Errorf("failed to initialize publisher: %w", err)
	}
	source := models.SourceRef{
		Name:    cfg.Source.Name,
		Kind:    cfg.Source.Kind,
		Project: cfg.Source.Project,
	}
	orch := orchestrator.New(reg, pub, source, logger)
	return &Components{
		Registry:     reg,
		Publisher:    pub,
		Orchestrator: orch,
	}, nil
}

func printUsage() {
	fmt.Println(`kumitate - Query registry to tool configuration compiler

Usage:
  kumitate server [flags]    Start the HTTP server
  kumitate compile [flags]   Compile and publish the tool configuration
  kumitate status [flags]    Show registry and pipeline status
  kumitate list [flags]      List registered query definitions
  kumitate seed [flags]      Populate the registry with sample definitions
  kumitate version           Show version
  kumitate help              Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/kumitate/config.yaml)
  --debug            Enable debug logging

Compile Flags:
  --config string    Config file path (for direct mode)
  --server string    Server URL (empty = run the pipeline directly)
  --output string    Output format: text or json (default: text)

Status Flags:
  --config string    Config file path (for direct registry access)
  --server string    Server URL (default: http://localhost:8080). Use --server "" for direct access.
  --output string    Output format: text or json (default: text)

Examples:
  kumitate server
  kumitate compile
  kumitate compile --server http://localhost:8080 --output json
  kumitate status
  kumitate list --output json
  kumitate seed`)
}

// ABOUTME: CLI entrypoint for the scrivener workflow engine with serve and work modes.
// ABOUTME: Wires together the registry, pipeline, dispatcher, queue, HTTP server, and signal handling.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/quillworks/scrivener/clients"
	"github.com/quillworks/scrivener/config"
	"github.com/quillworks/scrivener/dispatch"
	"github.com/quillworks/scrivener/metrics"
	"github.com/quillworks/scrivener/pipeline"
	"github.com/quillworks/scrivener/queue"
	"github.com/quillworks/scrivener/web"
	"github.com/quillworks/scrivener/workflow/store"
)

var version = "dev"

// cliConfig holds the flags parsed from the command line.
type cliConfig struct {
	workerMode  bool
	configFile  string
	verbose     bool
	showVersion bool
}

func main() {
	loadDotEnv(".env")

	cfg := parseFlags()

	if cfg.showVersion {
		fmt.Printf("scrivener %s\n", version)
		os.Exit(0)
	}

	os.Exit(run(cfg))
}

func parseFlags() cliConfig {
	var cfg cliConfig

	fs := flag.NewFlagSet("scrivener", flag.ContinueOnError)
	fs.BoolVar(&cfg.workerMode, "worker", false, "Run the async queue worker instead of the HTTP server")
	fs.StringVar(&cfg.configFile, "config", config.DefaultConfigFile, "Path to the YAML config overlay")
	fs.BoolVar(&cfg.verbose, "verbose", false, "Enable debug logging")
	fs.BoolVar(&cfg.showVersion, "version", false, "Print version and exit")

	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}
	return cfg
}

func run(cli cliConfig) int {
	level := slog.LevelInfo
	if cli.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(cli.configFile)
	if err != nil {
		logger.Error("load config", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry, err := store.Open(cfg.Storage.DBPath)
	if err != nil {
		logger.Error("open workflow registry", "error", err, "path", cfg.Storage.DBPath)
		return 1
	}
	defer registry.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	m := metrics.New(reg)

	executor := pipeline.NewExecutor(buildNodes(cfg), logger)

	var nc *nats.Conn
	var taskQueue *queue.Queue
	if cfg.Queue.NATSURL != "" {
		nc, err = nats.Connect(cfg.Queue.NATSURL, nats.Name("scrivener"))
		if err != nil {
			logger.Error("connect to nats", "error", err, "url", cfg.Queue.NATSURL)
			return 1
		}
		defer nc.Close()
		taskQueue, err = queue.New(nc)
		if err != nil {
			logger.Error("initialize task queue", "error", err)
			return 1
		}
	}

	dispatcher := dispatch.New(dispatch.Config{
		Registry:  registry,
		Executor:  executor,
		Queue:     enqueuerOrNil(taskQueue),
		Vault:     &clients.StaticVaultClient{Text: cfg.Services.VaultSummary},
		Metrics:   m,
		Logger:    logger,
		TimeLimit: cfg.Limits.TaskTimeLimit,
		SoftLimit: cfg.Limits.TaskSoftLimit,
	})

	if cli.workerMode {
		if nc == nil {
			logger.Error("worker mode requires SCRIVENER_NATS_URL")
			return 1
		}
		worker, err := queue.NewWorker(nc, registry, dispatcher, logger)
		if err != nil {
			logger.Error("initialize worker", "error", err)
			return 1
		}
		defer worker.Drain()
		if err := worker.Run(ctx); err != nil {
			logger.Error("worker stopped with error", "error", err)
			return 1
		}
		return 0
	}

	server := web.NewServer(web.ServerConfig{
		Dispatcher:  dispatcher,
		Registry:    registry,
		Logger:      logger,
		Gatherer:    reg,
		MaxPageSize: cfg.Server.MaxPageSize,
	})
	if err := server.ListenAndServe(ctx, cfg.Server.Bind); err != nil {
		logger.Error("http server stopped with error", "error", err)
		return 1
	}
	return 0
}

// buildNodes selects real or mock clients per the config toggles and wires
// the article-proposal nodes.
func buildNodes(cfg *config.Config) *pipeline.Registry {
	var llm clients.LLMClient
	if cfg.Mocks.LLM {
		llm = &clients.MockLLMClient{}
	} else {
		llm = clients.NewOpenAIClient(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.BaseURL)
	}

	var research clients.ResearchClient
	if cfg.Mocks.Research {
		research = &clients.MockResearchClient{}
	} else {
		research = clients.NewHTTPResearchClient(cfg.Services.ResearchURL, cfg.Limits.TaskTimeLimit)
	}

	var drafts clients.DraftBranchClient
	if cfg.Mocks.Draft {
		drafts = &clients.MockDraftBranchClient{}
	} else {
		drafts = clients.NewHTTPDraftBranchClient(cfg.Services.DraftURL, cfg.Limits.TaskTimeLimit)
	}

	return pipeline.DefaultNodeRegistry(llm, research, drafts)
}

// enqueuerOrNil avoids handing the dispatcher a typed-nil interface value.
func enqueuerOrNil(q *queue.Queue) dispatch.Enqueuer {
	if q == nil {
		return nil
	}
	return q
}

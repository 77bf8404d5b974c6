package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"quorum/internal/config"
	"quorum/internal/dispatch"
	"quorum/internal/evaluator"
	"quorum/internal/logging"
	"quorum/internal/notes"
	"quorum/internal/orchestrator"
	"quorum/internal/planner"
	"quorum/internal/protocol"
	"quorum/internal/server"
	"quorum/internal/worker"
	"quorum/internal/worker/sandbox"
)

var (
	// Global flags
	verbose    bool
	configPath string
	workspace  string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "quorum",
	Short: "quorum - multi-worker orchestration engine",
	Long: `quorum answers queries by planning which specialized workers to run,
dispatching them concurrently, and iterating under an evaluator's review
until the answer is good enough or the loop budget runs out.

Progress streams to the client as typed events with delivery acks.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if err := logging.Initialize(workspace); err != nil {
			logger.Warn("category logging unavailable", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// engine bundles the wired components for one process.
type engine struct {
	cfg        config.Config
	controller *orchestrator.Controller
	relay      protocol.Relay
	sink       notes.Sink
}

// buildEngine wires the full stack from configuration.
func buildEngine() (*engine, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	var llm *evaluator.GenAIClient
	if cfg.LLM.APIKey != "" {
		llm, err = evaluator.NewGenAIClient(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.RequestTimeout)
		if err != nil {
			return nil, fmt.Errorf("failed to create LLM client: %w", err)
		}
	} else {
		logger.Warn("no API key configured; LLM-backed workers and the evaluator are disabled")
	}

	sqlRunner, err := sandbox.NewSQLRunner(cfg.Sandbox.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQL sandbox: %w", err)
	}

	deps := worker.Deps{
		Code:  sandbox.NewCodeRunner(),
		SQL:   sqlRunner,
		Fetch: sandbox.NewFetcher(cfg.Sandbox.DataDir),
	}
	if llm != nil {
		deps.LLM = llm
	}
	if cfg.Sandbox.ShellEnabled {
		deps.Shell = sandbox.NewShellRunner(workspace)
	}

	var sink notes.Sink
	if sqliteSink, err := notes.NewSQLiteSink(cfg.Sandbox.DataDir); err != nil {
		logger.Warn("notes sink unavailable", zap.Error(err))
		sink = notes.NopSink{}
	} else {
		sink = sqliteSink
	}

	var relay protocol.Relay = protocol.NopRelay{}
	if cfg.Relay.RedisURL != "" {
		r, err := protocol.NewRedisRelay(cfg.Relay.RedisURL)
		if err != nil {
			logger.Warn("relay unavailable", zap.String("url", cfg.Relay.RedisURL), zap.Error(err))
		} else {
			relay = r
		}
	}

	ctrl := orchestrator.New(
		planner.New(),
		worker.NewRegistry(deps),
		dispatch.New(cfg.Orchestrator.WorkerTimeout),
		evaluator.New(deps.LLM),
		sink,
		orchestrator.Options{
			MaxIterations: cfg.Orchestrator.MaxIterations,
			HistoryWindow: cfg.Orchestrator.HistoryWindow,
		},
	)

	return &engine{cfg: cfg, controller: ctrl, relay: relay, sink: sink}, nil
}

func (e *engine) close() {
	e.relay.Close()
	e.sink.Close()
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the WebSocket session server",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := buildEngine()
		if err != nil {
			return err
		}
		defer eng.close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger.Info("serving", zap.String("addr", eng.cfg.Server.Addr))
		srv := server.New(eng.cfg, eng.controller, eng.relay)
		return srv.ListenAndServe(ctx)
	},
}

// consoleTransport prints events to stdout as JSON lines.
type consoleTransport struct{}

func (consoleTransport) WriteJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

var askCmd = &cobra.Command{
	Use:   "ask [query]",
	Short: "Run a single query and print the event stream",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := buildEngine()
		if err != nil {
			return err
		}
		defer eng.close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		sessionID := uuid.NewString()
		stream := protocol.NewStream(sessionID, consoleTransport{}, eng.relay, protocol.StreamConfig{
			AckTimeout: eng.cfg.Protocol.AckTimeout,
			QueueSize:  eng.cfg.Protocol.QueueSize,
		})
		defer stream.Close()

		query := strings.Join(args, " ")
		outcome := eng.controller.Run(ctx, sessionID, query, stream)
		if outcome.Err != nil {
			return outcome.Err
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "quorum.yaml", "path to configuration file")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", ".", "workspace directory for logs and data")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(askCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

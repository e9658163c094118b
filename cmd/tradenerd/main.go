package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"tradenerd/internal/agent"
	"tradenerd/internal/analytic"
	"tradenerd/internal/backboard"
	"tradenerd/internal/config"
	"tradenerd/internal/logging"
	"tradenerd/internal/progress"
	"tradenerd/internal/retry"
	"tradenerd/internal/session"
	"tradenerd/internal/trade"
)

var (
	// Global flags
	verbose    bool
	configPath string
	scoresPath string
	stream     bool

	// Logger
	logger *zap.Logger

	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "tradenerd",
	Short: "tradeNERD - behavioral trading analysis over Backboard",
	Long: `tradeNERD analyzes a trader's history for behavioral biases
(overtrading, revenge trading, loss aversion).

It drives a remote Backboard assistant through a bounded tool-resolution
loop: the assistant requests read-only SQL or summary statistics over the
uploaded trades, local tools execute them, and the loop continues until
the assistant produces its report.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}

		logger, err = logging.New(cfg.Logging, verbose)
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// analyzeCmd starts a new analysis session from a trades CSV
var analyzeCmd = &cobra.Command{
	Use:   "analyze [trades.csv]",
	Short: "Upload a trade history and generate the initial analysis report",
	Long: `Loads the trade CSV (and optional model scores), creates a Backboard
session, and prints the assistant's analysis report along with the session
id to use for follow-up chat.

Example:
  tradenerd analyze trades.csv --scores scores.yaml --stream`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

// chatCmd continues an existing session
var chatCmd = &cobra.Command{
	Use:   "chat [session-id] [message]",
	Short: "Send a follow-up message on an existing analysis session",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runChat,
}

// summaryCmd prints the local summary statistics without a remote call
var summaryCmd = &cobra.Command{
	Use:   "summary [trades.csv]",
	Short: "Compute the fixed summary statistics locally",
	Args:  cobra.ExactArgs(1),
	RunE:  runSummary,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "tradenerd.yaml", "path to config file")

	analyzeCmd.Flags().StringVar(&scoresPath, "scores", "", "YAML file with model-derived bias scores")
	analyzeCmd.Flags().BoolVar(&stream, "stream", false, "print progress events while the report is generated")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(summaryCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func loadTrades(path string) ([]trade.Trade, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trades file: %w", err)
	}
	defer f.Close()

	trades, err := trade.ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("parse trades file: %w", err)
	}
	trade.FillNotional(trades)
	return trades, nil
}

func loadScores(path string) (trade.ScoreSet, error) {
	if path == "" {
		return trade.ScoreSet{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scores file: %w", err)
	}
	var scores trade.ScoreSet
	if err := yaml.Unmarshal(data, &scores); err != nil {
		return nil, fmt.Errorf("parse scores file: %w", err)
	}
	return scores, nil
}

func buildService() (*agent.Service, *session.Store, error) {
	client, err := backboard.NewHTTPClient(backboard.Config{
		APIKey:   cfg.Backboard.APIKey,
		BaseURL:  cfg.Backboard.BaseURL,
		Provider: cfg.Backboard.Provider,
		Model:    cfg.Backboard.Model,
		Timeout:  cfg.GetRequestTimeout(),
		Logger:   logger,
	})
	if err != nil {
		return nil, nil, err
	}

	sessions := session.NewStore(session.Config{
		Dir:        cfg.Store.SnapshotDir,
		HistoryMax: cfg.Agent.HistoryMaxItems,
		SQLMaxRows: cfg.Agent.SQLMaxRows,
	}, logger)

	emitter := progress.NewEmitter(0, logger)

	policy := retry.DefaultPolicy()
	policy.MaxRetries = cfg.Backboard.MaxRetries
	policy.BaseDelay = cfg.GetRetryBaseDelay()
	policy.AttemptTimeout = cfg.GetRequestTimeout()

	caps := agent.Caps{
		MaxToolCallsPerCycle: cfg.Agent.MaxToolCallsPerCycle,
		MaxToolCycles:        cfg.Agent.MaxToolCycles,
	}

	svc := agent.NewService(client, sessions, emitter, policy, caps, cfg.Agent.SQLMaxRows, logger)
	return svc, sessions, nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	trades, err := loadTrades(args[0])
	if err != nil {
		return err
	}
	scores, err := loadScores(scoresPath)
	if err != nil {
		return err
	}

	svc, sessions, err := buildService()
	if err != nil {
		return err
	}
	defer sessions.Close()

	var res *agent.AnalysisResult
	if stream {
		res, err = svc.CreateAnalysisSessionStreaming(ctx, trades, scores, func(ev progress.Event) {
			switch ev.Type {
			case progress.TypeAgentEvent:
				fmt.Fprintf(os.Stderr, "[agent] %s: %s\n", ev.Action, ev.Observation)
			case progress.TypeProgress:
				fmt.Fprintf(os.Stderr, "[%s] %s\n", ev.Step, ev.Message)
			case progress.TypeError:
				fmt.Fprintf(os.Stderr, "[error] %s\n", ev.Message)
			}
		})
	} else {
		res, err = svc.CreateAnalysisSession(ctx, trades, scores)
	}
	if err != nil {
		return err
	}

	logger.Info("analysis session created",
		zap.String("session_id", res.SessionID),
		zap.Int("trades", len(trades)))

	out, _ := json.MarshalIndent(res, "", "  ")
	fmt.Println(string(out))
	return nil
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	svc, sessions, err := buildService()
	if err != nil {
		return err
	}
	defer sessions.Close()

	sessionID := args[0]
	message := args[1]
	for _, extra := range args[2:] {
		message += " " + extra
	}

	reply, err := svc.Chat(ctx, sessionID, message)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return fmt.Errorf("session not found. Please re-upload your trade data")
		}
		return err
	}

	fmt.Println(reply)
	return nil
}

func runSummary(cmd *cobra.Command, args []string) error {
	trades, err := loadTrades(args[0])
	if err != nil {
		return err
	}

	store, err := analytic.Load(trades, nil, analytic.Options{
		MaxRows: cfg.Agent.SQLMaxRows,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	out, err := store.Summary()
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}

package main

import (
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"taskrelay/internal/ai"
	"taskrelay/internal/config"
	"taskrelay/internal/embedding"
	"taskrelay/internal/logging"
	"taskrelay/internal/pipeline"
	"taskrelay/internal/platform"
	"taskrelay/internal/store"
)

var (
	// Global flags
	configPath string
	verbose    bool

	// Poll flags
	once         bool
	intervalFlag string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "taskrelay",
	Short: "taskrelay - channel message ingestion and AI-assisted task creation",
	Long: `taskrelay polls subscribed channels on a messaging platform, filters out
its own echo messages, deduplicates against previously processed messages,
enriches sender identity, retrieves related prior work, invokes an AI
reasoning step, creates a work item per surviving message, replies into the
channel and archives the exchange into semantic memory.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapConfig := zap.NewProductionConfig()
		if verbose {
			zapConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapConfig.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

// pollCmd runs the pipeline once or in a loop
var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Poll subscribed channels and process new messages",
	Long: `Runs one poll cycle, or a loop with a fixed sleep between cycles.

Examples:
  taskrelay poll --once
  taskrelay poll --interval 60s`,
	RunE: runPoll,
}

// statusCmd prints store statistics
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store statistics",
	RunE:  runStatus,
}

// subscribeCmd registers a channel for polling
var subscribeCmd = &cobra.Command{
	Use:   "subscribe [owner-item-id] [channel-id]",
	Short: "Register a channel subscription",
	Args:  cobra.ExactArgs(2),
	RunE:  runSubscribe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "taskrelay.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	pollCmd.Flags().BoolVar(&once, "once", false, "Run a single poll cycle and exit")
	pollCmd.Flags().StringVar(&intervalFlag, "interval", "", "Override the poll interval (e.g. 60s)")

	rootCmd.AddCommand(pollCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(subscribeCmd)
}

// loadConfig loads and validates configuration, then initializes the
// category file logger. Configuration errors are fatal.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := logging.Initialize(cfg.Logging.Dir, cfg.Logging.DebugMode || verbose, cfg.Logging.Level); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	return cfg, nil
}

// openStore opens the SQLite store and attaches the embedding engine when
// one is configured. A failed embedding setup degrades search to keyword
// matching instead of aborting.
func openStore(cfg *config.Config) (*store.Store, error) {
	st, err := store.New(cfg.Store.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	if provider := cfg.Embedding.Provider; provider != "" && provider != "none" {
		engine, err := embedding.NewEngine(embedding.Config{
			Provider:       provider,
			OllamaEndpoint: cfg.Embedding.OllamaEndpoint,
			OllamaModel:    cfg.Embedding.OllamaModel,
			GenAIAPIKey:    cfg.Embedding.GenAIAPIKey,
			GenAIModel:     cfg.Embedding.GenAIModel,
		})
		if err != nil {
			logger.Warn("Embedding engine unavailable, semantic search degrades to keyword matching",
				zap.String("provider", provider), zap.Error(err))
		} else {
			st.SetEmbeddingEngine(engine)
		}
	}
	return st, nil
}

func runPoll(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	// Channels declared in configuration become subscriptions.
	for _, ch := range cfg.Channels {
		if err := st.UpsertChannelSubscription(cmd.Context(), store.ChannelSubscription{
			OwnerItemID: ch.OwnerItemID,
			ChannelID:   ch.ChannelID,
		}); err != nil {
			return fmt.Errorf("failed to register channel %s: %w", ch.ChannelID, err)
		}
	}

	engine, err := ai.New(ai.Config{
		Provider: cfg.AI.Provider,
		APIKey:   cfg.AI.APIKey,
		BaseURL:  cfg.AI.BaseURL,
		Model:    cfg.AI.Model,
		Timeout:  cfg.AITimeout(),
	})
	if err != nil {
		return err
	}

	client := platform.NewClient(cfg.Platform, cfg.TokenEndpoint())
	orchestrator := pipeline.New(client, st, engine, cfg.Poll.MaxResults, cfg.Store.TaskURLBase)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	interval, err := resolveInterval(cfg)
	if err != nil {
		return err
	}

	if once || interval <= 0 {
		summary, err := orchestrator.RunOnce(ctx)
		if err != nil {
			return fmt.Errorf("poll cycle failed: %w", err)
		}
		printSummary(summary)
		return nil
	}

	logger.Info("Starting poll loop", zap.Duration("interval", interval))
	if err := orchestrator.RunLoop(ctx, interval); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("Poll loop stopped")
	return nil
}

// resolveInterval applies the --interval flag over the configured value.
func resolveInterval(cfg *config.Config) (time.Duration, error) {
	if intervalFlag != "" {
		interval, err := time.ParseDuration(intervalFlag)
		if err != nil {
			return 0, fmt.Errorf("invalid --interval: %w", err)
		}
		return interval, nil
	}
	return cfg.PollInterval()
}

func printSummary(summary pipeline.Summary) {
	fmt.Printf("Channels checked:    %d\n", summary.ItemsChecked)
	fmt.Printf("Messages found:      %d\n", summary.MessagesFound)
	fmt.Printf("Messages processed:  %d\n", summary.MessagesProcessed)
	fmt.Printf("Tasks created:       %d\n", summary.TasksCreated)
	fmt.Printf("Responses posted:    %d\n", summary.ResponsesPosted)
	if len(summary.Errors) > 0 {
		fmt.Printf("Errors:              %d\n", len(summary.Errors))
		for _, runErr := range summary.Errors {
			fmt.Printf("  - message %s (item %s): %s\n", runErr.MessageID, runErr.ItemID, runErr.Error)
		}
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	stats, err := st.Stats()
	if err != nil {
		return fmt.Errorf("failed to read store statistics: %w", err)
	}

	keys := make([]string, 0, len(stats))
	for key := range stats {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Printf("%-24s %v\n", key, stats[key])
	}
	return nil
}

func runSubscribe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := store.New(cfg.Store.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	sub := store.ChannelSubscription{OwnerItemID: args[0], ChannelID: args[1]}
	if err := st.UpsertChannelSubscription(cmd.Context(), sub); err != nil {
		return err
	}
	fmt.Printf("Subscribed channel %s for item %s\n", sub.ChannelID, sub.OwnerItemID)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/strongafter/assistant/agents"
	"github.com/strongafter/assistant/blackboard"
	"github.com/strongafter/assistant/catalog"
	"github.com/strongafter/assistant/embedding"
	"github.com/strongafter/assistant/internal/profile"
	"github.com/strongafter/assistant/internal/version"
	"github.com/strongafter/assistant/llm"
	"github.com/strongafter/assistant/metrics"
	"github.com/strongafter/assistant/server"
)

var rootCmd = &cobra.Command{
	Use:   "strongafter",
	Short: `A trauma recovery assistant. Multi-agent blackboard processing over a curated therapeutic content catalog.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Only load .env for direct binary execution (not when running as
		// a systemd service, which sets environment via its unit config).
		if !isRunningAsSystemdService() {
			_ = godotenv.Load()
		}
		return nil
	},
	Run: func(_ *cobra.Command, _ []string) {
		instanceProfile := &profile.Profile{
			Mode:    viper.GetString("mode"),
			Addr:    viper.GetString("addr"),
			Port:    viper.GetInt("port"),
			Data:    viper.GetString("data"),
			Version: version.GetCurrentVersion(viper.GetString("mode")),
		}
		instanceProfile.FromEnv()
		if err := instanceProfile.Validate(); err != nil {
			panic(err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		cat, err := catalog.Load(instanceProfile.Data)
		if err != nil {
			slog.Error("failed to load catalog", "error", err)
			return
		}

		exporter := metrics.NewExporter(metrics.DefaultConfig())

		engine, err := buildEngine(ctx, instanceProfile, cat, exporter)
		if err != nil {
			slog.Error("failed to build engine", "error", err)
			return
		}

		s := server.NewServer(instanceProfile, engine, cat, exporter)

		c := make(chan os.Signal, 1)
		// Trigger graceful shutdown on SIGINT or SIGTERM. The default signal
		// sent by the `kill` command is SIGTERM, which is taken as the
		// graceful shutdown signal for many systems, eg., Kubernetes.
		signal.Notify(c, terminationSignals...)

		go func() {
			<-c
			s.Shutdown(ctx)
			cancel()
		}()

		printGreetings(instanceProfile, cat)

		if err := s.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to start server", "error", err)
			return
		}

		<-ctx.Done()
	},
}

// buildEngine assembles the board, services, and agent roster from the
// profile. The local theme ranker needs a theme embedding index built up
// front; the LLM scorer needs nothing beyond the completion client.
func buildEngine(ctx context.Context, p *profile.Profile, cat *catalog.Catalog, exporter *metrics.Exporter) (*blackboard.Engine, error) {
	board := blackboard.NewBoard()

	model := p.LLMModel
	if model == "" {
		model = llm.DefaultModel
	}

	var completions llm.Service = llm.New(llm.Config{
		APIKey:            p.LLMAPIKey,
		BaseURL:           p.LLMBaseURL,
		Model:             p.LLMModel,
		RequestsPerMinute: p.LLMRPM,
	})
	completions = exporter.WrapLLM(completions, model)

	rosterCfg := agents.RosterConfig{
		LLM:   completions,
		Books: cat.Books,
	}

	if p.ThemeRanker == "local" {
		embedder := embedding.New(embedding.Config{
			APIKey:  p.EmbeddingAPIKey,
			BaseURL: p.EmbeddingBaseURL,
			Model:   p.EmbeddingModel,
		})
		index, err := agents.BuildThemeIndex(ctx, embedder, cat.Themes)
		if err != nil {
			return nil, err
		}
		rosterCfg.Embedder = embedder
		rosterCfg.ThemeIndex = index
	}

	roster := agents.Roster(board, rosterCfg)

	return blackboard.NewEngine(board, roster, cat.Themes, blackboard.EngineConfig{
		Timeout:     time.Duration(p.SessionTimeout) * time.Second,
		MaxParallel: int64(p.MaxParallelAgents),
	}), nil
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("port", 5002)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 5002, "port of server")
	rootCmd.PersistentFlags().String("data", "resources", "catalog data directory")

	if err := viper.BindPFlag("mode", rootCmd.PersistentFlags().Lookup("mode")); err != nil {
		panic(err)
	}
	if err := viper.BindPFlag("addr", rootCmd.PersistentFlags().Lookup("addr")); err != nil {
		panic(err)
	}
	if err := viper.BindPFlag("port", rootCmd.PersistentFlags().Lookup("port")); err != nil {
		panic(err)
	}
	if err := viper.BindPFlag("data", rootCmd.PersistentFlags().Lookup("data")); err != nil {
		panic(err)
	}

	viper.SetEnvPrefix("strongafter")
	viper.AutomaticEnv()
}

func printGreetings(p *profile.Profile, cat *catalog.Catalog) {
	fmt.Printf("StrongAfter %s started successfully!\n", p.Version)

	if p.IsDev() {
		fmt.Fprint(os.Stderr, "Development mode is enabled\n")
	}

	fmt.Printf("Data directory: %s\n", p.Data)
	fmt.Printf("Themes loaded: %d\n", len(cat.Themes))
	fmt.Printf("Theme ranker: %s\n", p.ThemeRanker)
	fmt.Printf("Mode: %s\n", p.Mode)

	if len(p.Addr) == 0 {
		fmt.Printf("Server running on port %d\n", p.Port)
	} else {
		fmt.Printf("Server running on %s:%d\n", p.Addr, p.Port)
	}
}

// isRunningAsSystemdService detects if the process is running under systemd.
func isRunningAsSystemdService() bool {
	return os.Getenv("INVOCATION_ID") != "" || os.Getenv("WATCHDOG_USEC") != ""
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		panic(err)
	}
}

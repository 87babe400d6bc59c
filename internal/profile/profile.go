package profile

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Profile is configuration to start the main server.
type Profile struct {
	// LLM configuration (OpenAI-compatible protocol). All providers
	// (gemini, openai, ollama) use the same config surface.
	LLMProvider string // Provider identifier: gemini, openai, ollama
	LLMAPIKey   string // LLM API key
	LLMBaseURL  string // LLM base URL (optional, has default per provider)
	LLMModel    string // Model name: gemini-2.0-flash, gpt-4o, etc.
	LLMRPM      int    // Requests per minute cap (0 disables throttling)

	// Embedding configuration, used by the local theme ranker.
	EmbeddingAPIKey  string
	EmbeddingBaseURL string
	EmbeddingModel   string

	// ThemeRanker selects how themes are scored: "llm" or "local".
	ThemeRanker string

	// Strategy is the default execution strategy for sessions.
	Strategy string
	// SessionTimeout bounds one parallel group or sequential agent, seconds.
	SessionTimeout int
	// MaxParallelAgents caps concurrently running agents within a group.
	MaxParallelAgents int

	Mode      string
	Addr      string
	Port      int
	Data      string // catalog data directory
	Version   string
	AIEnabled bool
}

// Provider default configurations for the LLM.
// Used when STRONGAFTER_LLM_BASE_URL is not explicitly set.
var llmProviderDefaults = map[string]struct {
	BaseURL string
	Model   string
}{
	"gemini": {
		BaseURL: "https://generativelanguage.googleapis.com/v1beta/openai/",
		Model:   "gemini-2.0-flash",
	},
	"openai": {
		BaseURL: "https://api.openai.com/v1",
		Model:   "gpt-4o-mini",
	},
	"ollama": {
		BaseURL: "http://localhost:11434/v1",
		Model:   "llama3.1",
	},
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsAIEnabled returns true if an LLM API key is configured.
func (p *Profile) IsAIEnabled() bool {
	return p.LLMAPIKey != ""
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default value.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables.
func (p *Profile) FromEnv() {
	p.LLMProvider = getEnvOrDefault("STRONGAFTER_LLM_PROVIDER", "gemini")
	p.LLMAPIKey = getEnvOrDefault("STRONGAFTER_LLM_API_KEY", getEnvOrDefault("GEMINI_API_KEY", ""))
	p.LLMBaseURL = getEnvOrDefault("STRONGAFTER_LLM_BASE_URL", "")
	p.LLMModel = getEnvOrDefault("STRONGAFTER_LLM_MODEL", "")
	p.LLMRPM = getEnvOrDefaultInt("STRONGAFTER_LLM_RPM", 0)

	p.AIEnabled = p.LLMAPIKey != ""

	if p.LLMProvider != "" {
		if _, ok := llmProviderDefaults[p.LLMProvider]; !ok {
			slog.Warn("Unknown LLM provider, using default: gemini", "provider", p.LLMProvider)
			p.LLMProvider = "gemini"
		}
	}
	if p.LLMBaseURL == "" || p.LLMModel == "" {
		if defaults, ok := llmProviderDefaults[p.LLMProvider]; ok {
			if p.LLMBaseURL == "" {
				p.LLMBaseURL = defaults.BaseURL
			}
			if p.LLMModel == "" {
				p.LLMModel = defaults.Model
			}
		}
	}

	// Embedding configuration
	p.EmbeddingAPIKey = getEnvOrDefault("STRONGAFTER_EMBEDDING_API_KEY", p.LLMAPIKey)
	p.EmbeddingBaseURL = getEnvOrDefault("STRONGAFTER_EMBEDDING_BASE_URL", p.LLMBaseURL)
	p.EmbeddingModel = getEnvOrDefault("STRONGAFTER_EMBEDDING_MODEL", "text-embedding-004")

	p.ThemeRanker = getEnvOrDefault("STRONGAFTER_THEME_RANKER", "llm")

	// Session execution configuration
	p.Strategy = getEnvOrDefault("STRONGAFTER_STRATEGY", "hybrid")
	p.SessionTimeout = getEnvOrDefaultInt("STRONGAFTER_SESSION_TIMEOUT_SECONDS", 60)
	p.MaxParallelAgents = getEnvOrDefaultInt("STRONGAFTER_MAX_PARALLEL_AGENTS", 4)
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	switch p.Strategy {
	case "sequential", "parallel", "hybrid", "adaptive":
	default:
		slog.Warn("unknown strategy, using hybrid", "strategy", p.Strategy)
		p.Strategy = "hybrid"
	}

	if p.ThemeRanker != "llm" && p.ThemeRanker != "local" {
		slog.Warn("unknown theme ranker, using llm", "ranker", p.ThemeRanker)
		p.ThemeRanker = "llm"
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
		return err
	}
	p.Data = dataDir

	return nil
}

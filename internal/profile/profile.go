package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Profile is configuration to start main server.
type Profile struct {
	// Embedding configuration (OpenAI-compatible protocol).
	// Providers: openai, siliconflow, ollama, etc.; anything speaking /v1/embeddings.
	EmbeddingProvider   string
	EmbeddingModel      string
	EmbeddingAPIKey     string
	EmbeddingBaseURL    string
	EmbeddingDimensions int

	// LLM configuration for tag suggestion (OpenAI-compatible protocol).
	LLMProvider string
	LLMModel    string
	LLMAPIKey   string
	LLMBaseURL  string
	LLMTimeout  int // request timeout in seconds

	// Suggestion stream tuning. The per-stream similarity floors differ on
	// purpose: related-notes is stricter than search. They are configuration,
	// not constants, so deployments can tune them.
	SearchQuietMs   int
	TagQuietMs      int
	RelatedQuietMs  int
	SearchMinScore  float64
	RelatedMinScore float64
	SearchLimit     int
	TagLimit        int
	RelatedLimit    int
	RelatedMinChars int

	Mode        string
	Addr        string
	Data        string
	Driver      string
	DSN         string
	InstanceURL string
	Version     string
	Port        int
	AIEnabled   bool
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsAIEnabled returns true if an embedding API key is configured.
// Without it the service still serves note CRUD, but all suggestion
// streams degrade to empty results.
func (p *Profile) IsAIEnabled() bool {
	return p.AIEnabled
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

// getEnvOrDefaultFloat returns environment variable value as float64 or default value.
func getEnvOrDefaultFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables.
func (p *Profile) FromEnv() {
	// Embedding configuration
	p.EmbeddingProvider = getEnvOrDefault("MINDVAULT_EMBEDDING_PROVIDER", "openai")
	p.EmbeddingModel = getEnvOrDefault("MINDVAULT_EMBEDDING_MODEL", "text-embedding-3-small")
	p.EmbeddingAPIKey = getEnvOrDefault("MINDVAULT_EMBEDDING_API_KEY", "")
	p.EmbeddingBaseURL = getEnvOrDefault("MINDVAULT_EMBEDDING_BASE_URL", "")
	p.EmbeddingDimensions = getEnvOrDefaultInt("MINDVAULT_EMBEDDING_DIMENSIONS", 1024)

	// LLM configuration (tag suggestion)
	p.LLMProvider = getEnvOrDefault("MINDVAULT_LLM_PROVIDER", "openai")
	p.LLMModel = getEnvOrDefault("MINDVAULT_LLM_MODEL", "gpt-4o-mini")
	p.LLMAPIKey = getEnvOrDefault("MINDVAULT_LLM_API_KEY", "")
	p.LLMBaseURL = getEnvOrDefault("MINDVAULT_LLM_BASE_URL", "")
	p.LLMTimeout = getEnvOrDefaultInt("MINDVAULT_LLM_TIMEOUT_SECONDS", 30)

	// AI is enabled if the embedding API key is configured
	p.AIEnabled = p.EmbeddingAPIKey != ""

	// Suggestion stream tuning
	p.SearchQuietMs = getEnvOrDefaultInt("MINDVAULT_SEARCH_QUIET_MS", 500)
	p.TagQuietMs = getEnvOrDefaultInt("MINDVAULT_TAG_QUIET_MS", 1000)
	p.RelatedQuietMs = getEnvOrDefaultInt("MINDVAULT_RELATED_QUIET_MS", 1500)
	p.SearchMinScore = getEnvOrDefaultFloat("MINDVAULT_SEARCH_MIN_SCORE", 0.5)
	p.RelatedMinScore = getEnvOrDefaultFloat("MINDVAULT_RELATED_MIN_SCORE", 0.7)
	p.SearchLimit = getEnvOrDefaultInt("MINDVAULT_SEARCH_LIMIT", 10)
	p.TagLimit = getEnvOrDefaultInt("MINDVAULT_TAG_LIMIT", 5)
	p.RelatedLimit = getEnvOrDefaultInt("MINDVAULT_RELATED_LIMIT", 5)
	p.RelatedMinChars = getEnvOrDefaultInt("MINDVAULT_RELATED_MIN_CHARS", 20)
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

	if p.Mode == "prod" && p.Data == "" {
		if runtime.GOOS == "windows" {
			p.Data = filepath.Join(os.Getenv("ProgramData"), "mindvault")
			if _, err := os.Stat(p.Data); os.IsNotExist(err) {
				if err := os.MkdirAll(p.Data, 0770); err != nil {
					return errors.Wrapf(err, "failed to create data directory %s", p.Data)
				}
			}
		} else {
			p.Data = "/var/opt/mindvault"
		}
	}

	if p.Data == "" {
		p.Data = "."
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		return err
	}
	p.Data = dataDir

	switch p.Driver {
	case "postgres":
		if p.DSN == "" {
			return errors.New("dsn is required for postgres driver")
		}
	case "sqlite":
		if p.DSN == "" {
			p.DSN = filepath.Join(p.Data, fmt.Sprintf("mindvault_%s.db", p.Mode))
		}
	default:
		return errors.Errorf("unsupported database driver: %s", p.Driver)
	}

	if p.EmbeddingDimensions <= 0 {
		p.EmbeddingDimensions = 1024
	}

	return nil
}

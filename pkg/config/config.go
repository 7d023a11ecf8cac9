package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

type LLMConfig struct {
	Provider          string  `yaml:"provider" toml:"provider"`
	Model             string  `yaml:"model" toml:"model"`
	BaseURL           string  `yaml:"base_url" toml:"base_url"`
	APIKey            string  `yaml:"api_key" toml:"api_key"`
	MaxTokens         int     `yaml:"max_tokens" toml:"max_tokens"`
	Temperature       float64 `yaml:"temperature" toml:"temperature"`
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second"`
}

type EmbeddingConfig struct {
	Provider   string `yaml:"provider" toml:"provider"`
	Model      string `yaml:"model" toml:"model"`
	BaseURL    string `yaml:"base_url" toml:"base_url"`
	APIKey     string `yaml:"api_key" toml:"api_key"`
	Dimensions int    `yaml:"dimensions" toml:"dimensions"`
	BatchSize  int    `yaml:"batch_size" toml:"batch_size"`
}

type DatabaseConfig struct {
	URL       string `yaml:"url" toml:"url"`
	TableName string `yaml:"table_name" toml:"table_name"`
	BatchSize int    `yaml:"batch_size" toml:"batch_size"`
}

// ProcessorConfig sizes chunks in units of the chosen tokenizer: words by
// default, or BPE tokens for a tiktoken encoding such as cl100k_base.
type ProcessorConfig struct {
	ChunkSize      int    `yaml:"chunk_size" toml:"chunk_size"`
	ChunkOverlap   int    `yaml:"chunk_overlap" toml:"chunk_overlap"`
	MinChunkTokens int    `yaml:"min_chunk_tokens" toml:"min_chunk_tokens"`
	Tokenizer      string `yaml:"tokenizer" toml:"tokenizer"`
}

type RetrievalConfig struct {
	TopK int `yaml:"top_k" toml:"top_k"`
	// ScoreThreshold is nil until defaults are applied so that an explicit 0
	// survives.
	ScoreThreshold *float64 `yaml:"score_threshold" toml:"score_threshold"`
}

// MinScore returns the configured similarity floor.
func (r RetrievalConfig) MinScore() float64 {
	if r.ScoreThreshold == nil {
		return 0.5
	}
	return *r.ScoreThreshold
}

type EvaluationConfig struct {
	Mode                 string `yaml:"mode" toml:"mode"`
	LongContextMaxTokens int    `yaml:"long_context_max_tokens" toml:"long_context_max_tokens"`
	CharsPerToken        int    `yaml:"chars_per_token" toml:"chars_per_token"`
	RetryContextChars    int    `yaml:"retry_context_chars" toml:"retry_context_chars"`
	ChecklistPath        string `yaml:"checklist_path" toml:"checklist_path"`
}

type ScraperConfig struct {
	MaxDepth       int      `yaml:"max_depth" toml:"max_depth"`
	RateLimit      float64  `yaml:"rate_limit" toml:"rate_limit"`
	IgnorePatterns []string `yaml:"ignore_patterns" toml:"ignore_patterns"`
	TimeoutSeconds int      `yaml:"timeout_seconds" toml:"timeout_seconds"`
}

type PathsConfig struct {
	UploadDir   string `yaml:"upload_dir" toml:"upload_dir"`
	ReportDir   string `yaml:"report_dir" toml:"report_dir"`
	AuditDBPath string `yaml:"audit_db_path" toml:"audit_db_path"`
}

type ServerConfig struct {
	Host              string `yaml:"host" toml:"host"`
	Port              int    `yaml:"port" toml:"port"`
	QueueSize         int    `yaml:"queue_size" toml:"queue_size"`
	HeartbeatSeconds  int    `yaml:"heartbeat_seconds" toml:"heartbeat_seconds"`
	JobRetentionHours int    `yaml:"job_retention_hours" toml:"job_retention_hours"`
}

type LoggingConfig struct {
	Level string `yaml:"level" toml:"level"`
	Dir   string `yaml:"dir" toml:"dir"`
}

type Config struct {
	LLM        LLMConfig        `yaml:"llm" toml:"llm"`
	Embedding  EmbeddingConfig  `yaml:"embedding" toml:"embedding"`
	Database   DatabaseConfig   `yaml:"database" toml:"database"`
	Processor  ProcessorConfig  `yaml:"processor" toml:"processor"`
	Retrieval  RetrievalConfig  `yaml:"retrieval" toml:"retrieval"`
	Evaluation EvaluationConfig `yaml:"evaluation" toml:"evaluation"`
	Scraper    ScraperConfig    `yaml:"scraper" toml:"scraper"`
	Paths      PathsConfig      `yaml:"paths" toml:"paths"`
	Server     ServerConfig     `yaml:"server" toml:"server"`
	Logging    LoggingConfig    `yaml:"logging" toml:"logging"`
}

// DefaultLocations are searched in order when no path is given.
func DefaultLocations() []string {
	home, _ := os.UserHomeDir()
	return []string{
		"config.yaml",
		"config.yml",
		"config.toml",
		filepath.Join(home, ".config/dqcheck/config.yaml"),
		"/etc/dqcheck/config.yaml",
	}
}

// LoadConfig reads the file at path, or the first default location that
// exists, then layers .env and environment variables and fills defaults.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if path == "" {
		for _, loc := range DefaultLocations() {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	config := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := decode(path, data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

// Default returns a config with defaults and environment overrides only.
func Default() *Config {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)
	return config
}

func decode(path string, data []byte, config *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields().Decode(config)
	case ".yaml", ".yml", "":
		return yaml.Unmarshal(data, config)
	default:
		return fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
}

var defaultLLMModels = map[string]string{
	"ollama":       "llama3.1",
	"openai":       "gpt-4o-mini",
	"anthropic":    "claude-3-5-sonnet-latest",
	"google_genai": "gemini-2.5-flash",
}

var defaultEmbedding = map[string]struct {
	model      string
	dimensions int
}{
	"ollama":       {"nomic-embed-text", 768},
	"openai":       {"text-embedding-3-small", 1536},
	"google_genai": {"gemini-embedding-001", 3072},
}

func applyDefaults(config *Config) {
	if config.LLM.Provider == "" {
		config.LLM.Provider = "ollama"
	}
	if config.LLM.Model == "" {
		config.LLM.Model = defaultLLMModels[config.LLM.Provider]
	}
	if config.LLM.BaseURL == "" && config.LLM.Provider == "ollama" {
		config.LLM.BaseURL = "http://localhost:11434"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 4096
	}

	if config.Embedding.Provider == "" {
		config.Embedding.Provider = "ollama"
	}
	if config.Embedding.Model == "" {
		config.Embedding.Model = defaultEmbedding[config.Embedding.Provider].model
	}
	if config.Embedding.BaseURL == "" && config.Embedding.Provider == config.LLM.Provider {
		config.Embedding.BaseURL = config.LLM.BaseURL
	}
	if config.Embedding.APIKey == "" && config.Embedding.Provider == config.LLM.Provider {
		config.Embedding.APIKey = config.LLM.APIKey
	}
	if config.Embedding.Dimensions == 0 {
		config.Embedding.Dimensions = defaultEmbedding[config.Embedding.Provider].dimensions
	}
	if config.Embedding.BatchSize == 0 {
		config.Embedding.BatchSize = 32
	}

	if config.Database.TableName == "" {
		config.Database.TableName = "document_chunks"
	}
	if config.Database.BatchSize == 0 {
		config.Database.BatchSize = 100
	}

	if config.Processor.ChunkSize == 0 {
		config.Processor.ChunkSize = 1000
	}
	if config.Processor.ChunkOverlap == 0 {
		config.Processor.ChunkOverlap = 150
	}
	if config.Processor.MinChunkTokens == 0 {
		config.Processor.MinChunkTokens = 20
	}
	if config.Processor.Tokenizer == "" {
		config.Processor.Tokenizer = "words"
	}

	if config.Retrieval.TopK == 0 {
		config.Retrieval.TopK = 10
	}
	if config.Retrieval.ScoreThreshold == nil {
		threshold := 0.5
		config.Retrieval.ScoreThreshold = &threshold
	}

	if config.Evaluation.Mode == "" {
		config.Evaluation.Mode = "auto"
	}
	if config.Evaluation.LongContextMaxTokens == 0 {
		config.Evaluation.LongContextMaxTokens = 100000
	}
	if config.Evaluation.CharsPerToken == 0 {
		config.Evaluation.CharsPerToken = 4
	}
	if config.Evaluation.RetryContextChars == 0 {
		config.Evaluation.RetryContextChars = 5000
	}
	if config.Evaluation.ChecklistPath == "" {
		config.Evaluation.ChecklistPath = "data/dqc/sample_dqc.json"
	}

	if config.Scraper.MaxDepth == 0 {
		config.Scraper.MaxDepth = 1
	}
	if config.Scraper.RateLimit == 0 {
		config.Scraper.RateLimit = 2.0
	}
	if config.Scraper.TimeoutSeconds == 0 {
		config.Scraper.TimeoutSeconds = 30
	}

	if config.Paths.UploadDir == "" {
		config.Paths.UploadDir = "data/uploads"
	}
	if config.Paths.ReportDir == "" {
		config.Paths.ReportDir = "reports"
	}
	if config.Paths.AuditDBPath == "" {
		config.Paths.AuditDBPath = "data/audit.db"
	}

	if config.Server.Host == "" {
		config.Server.Host = "0.0.0.0"
	}
	if config.Server.Port == 0 {
		config.Server.Port = 8000
	}
	if config.Server.QueueSize == 0 {
		config.Server.QueueSize = 100
	}
	if config.Server.HeartbeatSeconds == 0 {
		config.Server.HeartbeatSeconds = 30
	}
	if config.Server.JobRetentionHours == 0 {
		config.Server.JobRetentionHours = 24
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}
}

func mergeWithEnv(config *Config) {
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		config.LLM.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		config.LLM.Model = v
	}
	if v := os.Getenv("OLLAMA_BASE_URL"); v != "" {
		if config.LLM.Provider == "" || config.LLM.Provider == "ollama" {
			config.LLM.BaseURL = v
		}
		if config.Embedding.Provider == "" || config.Embedding.Provider == "ollama" {
			config.Embedding.BaseURL = v
		}
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		config.LLM.APIKey = v
	} else if config.LLM.APIKey == "" {
		switch config.LLM.Provider {
		case "openai":
			config.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		case "anthropic":
			config.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		case "google_genai":
			config.LLM.APIKey = os.Getenv("GOOGLE_API_KEY")
		}
	}
	if v := os.Getenv("EMBEDDING_PROVIDER"); v != "" {
		config.Embedding.Provider = strings.ToLower(v)
	}
	if config.Embedding.APIKey == "" {
		switch config.Embedding.Provider {
		case "openai":
			config.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
		case "google_genai":
			config.Embedding.APIKey = os.Getenv("GOOGLE_API_KEY")
		}
	}
	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		config.Embedding.Model = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		config.Database.URL = v
	}
	if v := os.Getenv("EVALUATION_MODE"); v != "" {
		config.Evaluation.Mode = v
	}
	if v := os.Getenv("DQCHECK_REPORT_DIR"); v != "" {
		config.Paths.ReportDir = v
	}
	if v := os.Getenv("DQCHECK_AUDIT_DB"); v != "" {
		config.Paths.AuditDBPath = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			config.Server.Port = port
		}
	}
}

package config

import (
	"fmt"
	"net/url"

	"github.com/xhad/dqcheck/internal/models"
	"github.com/xhad/dqcheck/pkg/logging"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError
	add := func(field, format string, args ...any) {
		errors = append(errors, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// LLM
	switch c.LLM.Provider {
	case "ollama":
		if c.LLM.BaseURL == "" {
			add("llm.base_url", "Ollama base URL is required")
		}
	case "openai", "anthropic", "google_genai":
		if c.LLM.APIKey == "" {
			add("llm.api_key", "api key is required for provider %s", c.LLM.Provider)
		}
	default:
		add("llm.provider", "unsupported provider %q", c.LLM.Provider)
	}
	if c.LLM.BaseURL != "" && !validURL(c.LLM.BaseURL) {
		add("llm.base_url", "invalid base URL")
	}
	if c.LLM.MaxTokens < 1 {
		add("llm.max_tokens", "max_tokens must be positive")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 1 {
		add("llm.temperature", "temperature must be between 0 and 1")
	}
	if c.LLM.RequestsPerSecond < 0 {
		add("llm.requests_per_second", "requests_per_second cannot be negative")
	}

	// Embedding
	switch c.Embedding.Provider {
	case "ollama", "openai":
	case "google_genai":
		if c.Embedding.APIKey == "" {
			add("embedding.api_key", "api key is required for provider %s", c.Embedding.Provider)
		}
	default:
		add("embedding.provider", "unsupported provider %q", c.Embedding.Provider)
	}
	if c.Embedding.BaseURL != "" && !validURL(c.Embedding.BaseURL) {
		add("embedding.base_url", "invalid base URL")
	}
	if c.Embedding.Dimensions < 1 {
		add("embedding.dimensions", "dimensions must be positive")
	}
	if c.Embedding.BatchSize < 1 {
		add("embedding.batch_size", "batch_size must be positive")
	}

	// Database
	if c.Database.URL != "" {
		if u, err := url.Parse(c.Database.URL); err != nil || u.Scheme == "" {
			add("database.url", "invalid database URL")
		}
	}
	if c.Database.BatchSize < 1 {
		add("database.batch_size", "batch_size must be positive")
	}

	// Processor
	if c.Processor.ChunkSize < 1 {
		add("processor.chunk_size", "chunk_size must be positive")
	}
	if c.Processor.ChunkOverlap >= c.Processor.ChunkSize {
		add("processor.chunk_overlap", "chunk_overlap must be less than chunk_size")
	}
	if c.Processor.MinChunkTokens < 0 {
		add("processor.min_chunk_tokens", "min_chunk_tokens cannot be negative")
	}

	// Retrieval
	if c.Retrieval.TopK < 1 {
		add("retrieval.top_k", "top_k must be positive")
	}
	if t := c.Retrieval.MinScore(); t < 0 || t > 1 {
		add("retrieval.score_threshold", "score_threshold must be between 0 and 1")
	}

	// Evaluation
	if _, err := models.ParseEvaluationMode(c.Evaluation.Mode); err != nil {
		add("evaluation.mode", "mode must be rag, long_context or auto")
	}
	if c.Evaluation.LongContextMaxTokens < 1 {
		add("evaluation.long_context_max_tokens", "long_context_max_tokens must be positive")
	}
	if c.Evaluation.CharsPerToken < 1 {
		add("evaluation.chars_per_token", "chars_per_token must be positive")
	}
	if c.Evaluation.RetryContextChars < 1 {
		add("evaluation.retry_context_chars", "retry_context_chars must be positive")
	}

	// Scraper
	if c.Scraper.MaxDepth < 1 {
		add("scraper.max_depth", "max_depth must be positive")
	}
	if c.Scraper.RateLimit <= 0 {
		add("scraper.rate_limit", "rate_limit must be positive")
	}
	if c.Scraper.TimeoutSeconds < 1 {
		add("scraper.timeout_seconds", "timeout_seconds must be positive")
	}

	// Server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		add("server.port", "port must be between 1 and 65535")
	}
	if c.Server.QueueSize < 1 {
		add("server.queue_size", "queue_size must be positive")
	}
	if c.Server.HeartbeatSeconds < 1 {
		add("server.heartbeat_seconds", "heartbeat_seconds must be positive")
	}
	if c.Server.JobRetentionHours < 1 {
		add("server.job_retention_hours", "job_retention_hours must be positive")
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		add("logging.level", "level must be debug, info, warn or error")
	}

	return errors
}

func validURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}

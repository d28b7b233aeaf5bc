package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config centralizes runtime settings for the API, workers and sweeper.
type Config struct {
	Port     string
	AppEnv   string
	LogLevel string

	OutputDir    string
	LogoPath     string
	PromptsDir   string
	DefaultBrand string

	AIProvider        string
	AnthropicAPIKey   string
	AnthropicBaseURL  string
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	OpenRouterAPIKey  string
	OpenRouterBaseURL string
	OpenRouterSiteURL string
	OpenRouterAppName string
	AITimeoutMS       int
	AIMaxRetries      int

	AIModelAnalysisPrimary   string
	AIModelAnalysisFallback  string
	AIModelNarrativePrimary  string
	AIModelNarrativeFallback string
	AIModelSlidesPrimary     string
	AIModelSlidesFallback    string

	AIBreakerMaxFailures int
	AIBreakerOpenSeconds int

	ResponseCacheTTLSeconds int
	ResponseCacheMaxEntries int

	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisStream   string
	RedisDLQ      string
	RedisGroup    string
	RedisConsumer string

	WorkerCount            int
	QueueCapacity          int
	JobMaxAgeMS            int
	SweepIntervalSeconds   int
	ShutdownTimeoutSeconds int

	FetchTimeoutMS   int
	FetchMaxBytes    int64
	ContentMaxTokens int

	DeckMaxCards     int
	DeckBulletBudget float64

	AuthToken          string
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int
	MaxBodyBytes       int64
}

func Load() Config {
	return Config{
		Port:     getEnv("PORT", "3000"),
		AppEnv:   getEnv("APP_ENV", "production"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		OutputDir:    getEnv("OUTPUT_DIR", "./output"),
		LogoPath:     getEnv("LOGO_PATH", "./logowhite.png"),
		PromptsDir:   getEnv("PROMPTS_DIR", ""),
		DefaultBrand: getEnv("DEFAULT_BRAND", "traefik"),

		AIProvider:        strings.ToLower(getEnv("AI_PROVIDER", "anthropic")),
		AnthropicAPIKey:   getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicBaseURL:  getEnv("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenRouterAPIKey:  getEnv("OPENROUTER_API_KEY", ""),
		OpenRouterBaseURL: getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		OpenRouterSiteURL: getEnv("OPENROUTER_SITE_URL", ""),
		OpenRouterAppName: getEnv("OPENROUTER_APP_NAME", "PPTX Generator"),
		AITimeoutMS:       getEnvInt("AI_TIMEOUT_MS", 120000),
		AIMaxRetries:      getEnvInt("AI_MAX_RETRIES", 2),

		AIModelAnalysisPrimary:   getEnv("AI_MODEL_ANALYSIS_PRIMARY", ""),
		AIModelAnalysisFallback:  getEnv("AI_MODEL_ANALYSIS_FALLBACK", ""),
		AIModelNarrativePrimary:  getEnv("AI_MODEL_NARRATIVE_PRIMARY", ""),
		AIModelNarrativeFallback: getEnv("AI_MODEL_NARRATIVE_FALLBACK", ""),
		AIModelSlidesPrimary:     getEnv("AI_MODEL_SLIDES_PRIMARY", ""),
		AIModelSlidesFallback:    getEnv("AI_MODEL_SLIDES_FALLBACK", ""),

		AIBreakerMaxFailures: getEnvInt("AI_BREAKER_MAX_FAILURES", 5),
		AIBreakerOpenSeconds: getEnvInt("AI_BREAKER_OPEN_SECONDS", 30),

		ResponseCacheTTLSeconds: getEnvInt("RESPONSE_CACHE_TTL_SECONDS", 900),
		ResponseCacheMaxEntries: getEnvInt("RESPONSE_CACHE_MAX_ENTRIES", 256),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisStream:   getEnv("REDIS_STREAM", "pptx_jobs"),
		RedisDLQ:      getEnv("REDIS_DLQ_STREAM", "pptx_jobs_dlq"),
		RedisGroup:    getEnv("REDIS_GROUP", "pptx_workers"),
		RedisConsumer: getEnv("REDIS_CONSUMER", "api-1"),

		WorkerCount:            getEnvInt("WORKER_COUNT", 4),
		QueueCapacity:          getEnvInt("QUEUE_CAPACITY", 64),
		JobMaxAgeMS:            getEnvInt("JOB_MAX_AGE_MS", 3600000),
		SweepIntervalSeconds:   getEnvInt("SWEEP_INTERVAL_SECONDS", 1800),
		ShutdownTimeoutSeconds: getEnvInt("SHUTDOWN_TIMEOUT_SECONDS", 30),

		FetchTimeoutMS:   getEnvInt("FETCH_TIMEOUT_MS", 20000),
		FetchMaxBytes:    getEnvInt64("FETCH_MAX_BYTES", 10<<20),
		ContentMaxTokens: getEnvInt("CONTENT_MAX_TOKENS", 24000),

		DeckMaxCards:     getEnvInt("DECK_MAX_CARDS", 3),
		DeckBulletBudget: getEnvFloat("DECK_BULLET_BUDGET", 432),

		AuthToken:          getEnv("AUTH_TOKEN", ""),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		RateLimitRPS:       getEnvFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst:     getEnvInt("RATE_LIMIT_BURST", 20),
		MaxBodyBytes:       getEnvInt64("MAX_BODY_BYTES", 10<<20),
	}
}

func (c Config) IsDevelopment() bool {
	return strings.EqualFold(c.AppEnv, "development")
}

func (c Config) JobMaxAge() time.Duration {
	return time.Duration(c.JobMaxAgeMS) * time.Millisecond
}

func (c Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt64(key string, fallback int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	items := make([]string, 0)
	for _, item := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	if len(items) == 0 {
		return fallback
	}
	return items
}

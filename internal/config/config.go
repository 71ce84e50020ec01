package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds service configuration loaded from .env, YAML and the environment.
// Provider credentials may be empty; requests needing them fail at call time.
type Config struct {
	ServerPort     string
	RequestTimeout time.Duration
	FrontendURL    string

	OpenWeatherKey     string
	OpenWeatherURL     string
	OpenWeatherTimeout time.Duration

	NominatimURL     string
	NominatimTimeout time.Duration

	NewsAPIKey     string
	NewsAPIURL     string
	NewsAPITimeout time.Duration
	HeadlineLimit  int

	LLMProvider       string
	LLMAPIKey         string
	LLMBaseURL        string
	LLMModel          string
	CompletionTimeout time.Duration

	SecretKey string

	BreakerEnabled          bool
	BreakerFailureThreshold int
	BreakerOpenTimeout      time.Duration

	RateLimitRPS   int
	RateLimitBurst int

	CacheBackend          string // "in_memory" or "memcached"
	CacheTTL              time.Duration
	CacheMaxEntries       int // in_memory only
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	StoreBackend   string // "memory" or "sqlite"
	StorePath      string
	PersistTimeout time.Duration

	MetricsWindow   time.Duration
	ShutdownTimeout time.Duration
}

type fileConfig struct {
	Server struct {
		Port           string `yaml:"port"`
		RequestTimeout string `yaml:"request_timeout"`
		FrontendURL    string `yaml:"frontend_url"`
	} `yaml:"server"`

	Providers struct {
		OpenWeather struct {
			URL     string `yaml:"url"`
			Timeout string `yaml:"timeout"`
		} `yaml:"openweather"`
		Nominatim struct {
			URL     string `yaml:"url"`
			Timeout string `yaml:"timeout"`
		} `yaml:"nominatim"`
		NewsAPI struct {
			URL           string `yaml:"url"`
			Timeout       string `yaml:"timeout"`
			HeadlineLimit int    `yaml:"headline_limit"`
		} `yaml:"newsapi"`
		LLM struct {
			Provider string `yaml:"provider"`
			BaseURL  string `yaml:"base_url"`
			Model    string `yaml:"model"`
			Timeout  string `yaml:"timeout"`
		} `yaml:"llm"`
	} `yaml:"providers"`

	Reliability struct {
		CircuitBreaker struct {
			Enabled          *bool  `yaml:"enabled"`
			FailureThreshold int    `yaml:"failure_threshold"`
			OpenTimeout      string `yaml:"open_timeout"`
		} `yaml:"circuit_breaker"`
		RateLimitRPS   int `yaml:"rate_limit_rps"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	Cache struct {
		Backend    string `yaml:"backend"`
		TTL        string `yaml:"ttl"`
		MaxEntries int    `yaml:"max_entries"`
		Memcached  struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Store struct {
		Backend        string `yaml:"backend"`
		Path           string `yaml:"path"`
		PersistTimeout string `yaml:"persist_timeout"`
	} `yaml:"store"`

	Metrics struct {
		Window string `yaml:"window"`
	} `yaml:"metrics"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`
}

type secretsFile struct {
	OpenWeatherKey string `yaml:"openweather_key"`
	NewsAPIKey     string `yaml:"newsapi_key"`
	LLMAPIKey      string `yaml:"llm_api_key"`
	SecretKey      string `yaml:"secret_key"`
}

// Load reads .env (if present), config/{ENV_NAME}.yaml (default dev) and the
// optional config/secrets.yaml. Environment variables win over secrets.yaml.
// Call from project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}

	// .env only fills variables that are not already set.
	if err := godotenv.Load(filepath.Join(cwd, ".env")); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	sec, err := readSecrets(filepath.Join(cwd, "config", "secrets.yaml"))
	if err != nil {
		return nil, err
	}

	cfg := fromFile(fc)
	cfg.OpenWeatherKey = firstNonEmpty(os.Getenv("OPENWEATHER_KEY"), sec.OpenWeatherKey)
	cfg.NewsAPIKey = firstNonEmpty(os.Getenv("NEWSAPI_KEY"), sec.NewsAPIKey)
	cfg.LLMAPIKey = firstNonEmpty(os.Getenv("LLM_API_KEY"), sec.LLMAPIKey)
	cfg.SecretKey = firstNonEmpty(os.Getenv("SECRET_KEY"), sec.SecretKey)
	cfg.LLMProvider = strings.ToLower(firstNonEmpty(os.Getenv("LLM_PROVIDER"), cfg.LLMProvider, "huggingface"))
	cfg.FrontendURL = firstNonEmpty(os.Getenv("FRONTEND_URL"), cfg.FrontendURL, "http://localhost:3000")
	cfg.CacheBackend = strings.ToLower(firstNonEmpty(os.Getenv("CACHE_BACKEND"), cfg.CacheBackend, "in_memory"))
	cfg.MemcachedAddrs = firstNonEmpty(os.Getenv("MEMCACHED_ADDRS"), cfg.MemcachedAddrs, "localhost:11211")
	cfg.StoreBackend = strings.ToLower(firstNonEmpty(os.Getenv("STORE_BACKEND"), cfg.StoreBackend, "memory"))
	cfg.StorePath = firstNonEmpty(os.Getenv("STORE_PATH"), cfg.StorePath, filepath.Join("data", "daymate.db"))

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readSecrets(path string) (secretsFile, error) {
	var sec secretsFile
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return sec, nil
		}
		return sec, fmt.Errorf("read secrets file: %w", err)
	}
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return sec, fmt.Errorf("parse secrets file: %w", err)
	}
	return sec, nil
}

// fromFile applies defaults to the YAML values. Timeouts keep explicit zero or
// negative values so validate can reject them.
func fromFile(fc fileConfig) *Config {
	cfg := &Config{
		ServerPort:     firstNonEmpty(strings.TrimSpace(fc.Server.Port), "8080"),
		RequestTimeout: parseDuration(fc.Server.RequestTimeout, 15*time.Second),
		FrontendURL:    strings.TrimSpace(fc.Server.FrontendURL),

		OpenWeatherURL:     strings.TrimSpace(fc.Providers.OpenWeather.URL),
		OpenWeatherTimeout: parseDurationOrZero(fc.Providers.OpenWeather.Timeout, 10*time.Second),
		NominatimURL:       strings.TrimSpace(fc.Providers.Nominatim.URL),
		NominatimTimeout:   parseDurationOrZero(fc.Providers.Nominatim.Timeout, 10*time.Second),
		NewsAPIURL:         strings.TrimSpace(fc.Providers.NewsAPI.URL),
		NewsAPITimeout:     parseDurationOrZero(fc.Providers.NewsAPI.Timeout, 10*time.Second),
		HeadlineLimit:      fc.Providers.NewsAPI.HeadlineLimit,

		LLMProvider:       strings.TrimSpace(fc.Providers.LLM.Provider),
		LLMBaseURL:        strings.TrimSpace(fc.Providers.LLM.BaseURL),
		LLMModel:          strings.TrimSpace(fc.Providers.LLM.Model),
		CompletionTimeout: parseDurationOrZero(fc.Providers.LLM.Timeout, 30*time.Second),

		BreakerEnabled:          true,
		BreakerFailureThreshold: fc.Reliability.CircuitBreaker.FailureThreshold,
		BreakerOpenTimeout:      parseDuration(fc.Reliability.CircuitBreaker.OpenTimeout, 30*time.Second),

		RateLimitRPS:   fc.Reliability.RateLimitRPS,
		RateLimitBurst: fc.Reliability.RateLimitBurst,

		CacheBackend:          strings.TrimSpace(fc.Cache.Backend),
		CacheTTL:              parseDuration(fc.Cache.TTL, 24*time.Hour),
		CacheMaxEntries:       fc.Cache.MaxEntries,
		MemcachedAddrs:        strings.TrimSpace(fc.Cache.Memcached.Addrs),
		MemcachedTimeout:      parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond),
		MemcachedMaxIdleConns: fc.Cache.Memcached.MaxIdleConns,

		StoreBackend:   strings.TrimSpace(fc.Store.Backend),
		StorePath:      strings.TrimSpace(fc.Store.Path),
		PersistTimeout: parseDuration(fc.Store.PersistTimeout, 5*time.Second),

		MetricsWindow:   parseDuration(fc.Metrics.Window, 60*time.Second),
		ShutdownTimeout: parseDuration(fc.Shutdown.Timeout, 30*time.Second),
	}
	if fc.Reliability.CircuitBreaker.Enabled != nil {
		cfg.BreakerEnabled = *fc.Reliability.CircuitBreaker.Enabled
	}
	if cfg.HeadlineLimit <= 0 || cfg.HeadlineLimit > 5 {
		cfg.HeadlineLimit = 5
	}
	if cfg.BreakerFailureThreshold <= 0 {
		cfg.BreakerFailureThreshold = 5
	}
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 20
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 40
	}
	if cfg.CacheMaxEntries <= 0 {
		cfg.CacheMaxEntries = 10000
	}
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}
	return cfg
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// parseDuration parses s and returns defaultVal if parsing fails or the result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero returns defaultVal on empty string or parse error.
// Zero or negative durations are returned as-is.
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate rejects non-positive provider timeouts and unknown backends.
func validate(cfg *Config) error {
	timeouts := []struct {
		name string
		d    time.Duration
	}{
		{"providers.openweather.timeout", cfg.OpenWeatherTimeout},
		{"providers.nominatim.timeout", cfg.NominatimTimeout},
		{"providers.newsapi.timeout", cfg.NewsAPITimeout},
		{"providers.llm.timeout", cfg.CompletionTimeout},
	}
	for _, t := range timeouts {
		if t.d <= 0 {
			return fmt.Errorf("%s must be positive", t.name)
		}
	}
	switch cfg.CacheBackend {
	case "in_memory", "memcached":
	default:
		return fmt.Errorf("cache.backend must be in_memory or memcached, got %q", cfg.CacheBackend)
	}
	switch cfg.StoreBackend {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("store.backend must be memory or sqlite, got %q", cfg.StoreBackend)
	}
	return nil
}

package config

import (
	"log"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	HTTPPort int
	APIKey   string

	RedisURL      string
	RedisPassword string
	RedisDB       int
	DatabaseURL   string

	AlphaVantageAPIKey string
	AlphaVantageRPM    int
	BraveAPIKey        string

	OpenAIAPIKey string
	OpenAIModel  string

	WorkerPoolSize   int
	FetchTimeoutSecs int
	QueryTimeoutSecs int
	HistoryWindow    int

	PriceTTLSecs     int
	HighlightTTLSecs int
	NewsTTLSecs      int
	OverviewTTLSecs  int

	Watchlist          []string
	WarmupIntervalSecs int
	TrainHourUTC       int
	ModelPath          string

	TelegramBotToken string

	SSHHost        string
	SSHPort        int
	SSHHostKeyPath string

	MCPHTTPEnabled bool
	MCPHTTPBind    string
	MCPHTTPPort    int
}

func Load() *Config {
	cfg := &Config{
		APIKey:             os.Getenv("API_KEY"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		AlphaVantageAPIKey: os.Getenv("ALPHAVANTAGE_API_KEY"),
		BraveAPIKey:        os.Getenv("BRAVE_API_KEY"),
		OpenAIAPIKey:       os.Getenv("OPENAI_API_KEY"),
		TelegramBotToken:   os.Getenv("TELEGRAM_BOT_TOKEN"),
	}

	cfg.HTTPPort = 8080
	if v := strings.TrimSpace(os.Getenv("HTTP_PORT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HTTPPort = n
		} else {
			log.Printf("Warning: invalid HTTP_PORT=%q, using %d", v, cfg.HTTPPort)
		}
	}

	cfg.RedisURL = os.Getenv("REDIS_URL")
	if cfg.RedisURL == "" {
		log.Println("Warning: REDIS_URL not set, defaulting to localhost:6379")
		cfg.RedisURL = "localhost:6379"
	}

	cfg.RedisDB = 0
	if v := strings.TrimSpace(os.Getenv("REDIS_DB")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.RedisDB = n
		}
	}

	if cfg.DatabaseURL == "" {
		log.Println("Warning: DATABASE_URL not set, archive and snapshots disabled")
	}
	if cfg.AlphaVantageAPIKey == "" {
		log.Println("Warning: ALPHAVANTAGE_API_KEY not set, Alpha Vantage provider disabled")
	}
	if cfg.BraveAPIKey == "" {
		log.Println("Warning: BRAVE_API_KEY not set, Brave news provider disabled")
	}
	if cfg.OpenAIAPIKey == "" {
		log.Println("Warning: OPENAI_API_KEY not set, classification and summaries degraded")
	}

	cfg.AlphaVantageRPM = 5
	if v := strings.TrimSpace(os.Getenv("ALPHAVANTAGE_RPM")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.AlphaVantageRPM = n
		}
	}

	cfg.OpenAIModel = strings.TrimSpace(os.Getenv("OPENAI_MODEL"))
	if cfg.OpenAIModel == "" {
		cfg.OpenAIModel = "gpt-4o-mini"
	}

	cfg.WorkerPoolSize = 8
	if v := strings.TrimSpace(os.Getenv("WORKER_POOL_SIZE")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.WorkerPoolSize = n
		}
	}

	cfg.FetchTimeoutSecs = 10
	if v := strings.TrimSpace(os.Getenv("FETCH_TIMEOUT_SECS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.FetchTimeoutSecs = n
		}
	}

	cfg.QueryTimeoutSecs = 30
	if v := strings.TrimSpace(os.Getenv("QUERY_TIMEOUT_SECS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.QueryTimeoutSecs = n
		}
	}

	cfg.HistoryWindow = 10
	if v := strings.TrimSpace(os.Getenv("HISTORY_WINDOW")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HistoryWindow = n
		}
	}

	cfg.PriceTTLSecs = 300
	if v := strings.TrimSpace(os.Getenv("PRICE_TTL_SECS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PriceTTLSecs = n
		}
	}

	cfg.HighlightTTLSecs = 300
	if v := strings.TrimSpace(os.Getenv("HIGHLIGHT_TTL_SECS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HighlightTTLSecs = n
		}
	}

	cfg.NewsTTLSecs = 43200
	if v := strings.TrimSpace(os.Getenv("NEWS_TTL_SECS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.NewsTTLSecs = n
		}
	}

	cfg.OverviewTTLSecs = 86400
	if v := strings.TrimSpace(os.Getenv("OVERVIEW_TTL_SECS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.OverviewTTLSecs = n
		}
	}

	cfg.Watchlist = []string{"AAPL", "MSFT", "NVDA", "TSLA", "AMZN"}
	if v := strings.TrimSpace(os.Getenv("WATCHLIST")); v != "" {
		var list []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
				list = append(list, s)
			}
		}
		if len(list) > 0 {
			cfg.Watchlist = list
		}
	}

	cfg.WarmupIntervalSecs = 21600
	if v := strings.TrimSpace(os.Getenv("WARMUP_INTERVAL_SECS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.WarmupIntervalSecs = n
		}
	}

	cfg.TrainHourUTC = 4
	if v := strings.TrimSpace(os.Getenv("TRAIN_HOUR_UTC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 && n <= 23 {
			cfg.TrainHourUTC = n
		} else {
			log.Printf("Warning: invalid TRAIN_HOUR_UTC=%q, using %d", v, cfg.TrainHourUTC)
		}
	}

	cfg.ModelPath = strings.TrimSpace(os.Getenv("MODEL_PATH"))
	if cfg.ModelPath == "" {
		cfg.ModelPath = "data/signal_model.json"
	}

	cfg.SSHHost = strings.TrimSpace(os.Getenv("SSH_HOST"))
	if cfg.SSHHost == "" {
		cfg.SSHHost = "0.0.0.0"
	}

	cfg.SSHPort = 2222
	if v := strings.TrimSpace(os.Getenv("SSH_PORT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SSHPort = n
		}
	}

	cfg.SSHHostKeyPath = strings.TrimSpace(os.Getenv("SSH_HOST_KEY_PATH"))
	if cfg.SSHHostKeyPath == "" {
		cfg.SSHHostKeyPath = ".ssh/stella_ed25519"
	}

	cfg.MCPHTTPEnabled = strings.EqualFold(strings.TrimSpace(os.Getenv("MCP_HTTP_ENABLED")), "true")

	cfg.MCPHTTPBind = strings.TrimSpace(os.Getenv("MCP_HTTP_BIND"))
	if cfg.MCPHTTPBind == "" {
		cfg.MCPHTTPBind = "127.0.0.1"
	}

	cfg.MCPHTTPPort = 8090
	if v := strings.TrimSpace(os.Getenv("MCP_HTTP_PORT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MCPHTTPPort = n
		}
	}

	return cfg
}

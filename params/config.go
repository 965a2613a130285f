package params

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// MarketConfig declares one market to open at startup. Markets are fixed
// for the process lifetime; there is no dynamic market creation.
type MarketConfig struct {
	BaseAsset  string
	QuoteAsset string
}

// SeedBalance credits an owner's available balance when starting without a
// snapshot.
type SeedBalance struct {
	Owner  string
	Asset  string
	Amount int64
}

type Engine struct {
	// RejectSelfTrade refuses orders that would match the owner's own
	// resting orders. The default (false) allows self-matching.
	RejectSelfTrade bool
	// QueueSize bounds the request queue feeding the engine.
	QueueSize int
	// RequestTimeout bounds how long a gateway call awaits its reply.
	RequestTimeout time.Duration
}

type Snapshot struct {
	Path     string
	Interval time.Duration
}

type Gateway struct {
	Listen         string
	AllowedOrigins []string
}

type Config struct {
	Markets      []MarketConfig
	SeedBalances []SeedBalance
	Engine       Engine
	Snapshot     Snapshot
	Gateway      Gateway
	TradeDBPath  string
	LogFile      string
}

// Default mirrors the devnet setup: one TATA_INR market and five funded
// users.
func Default() Config {
	seeds := make([]SeedBalance, 0, 10)
	for _, owner := range []string{"u001", "u002", "u003", "u004", "u005"} {
		seeds = append(seeds,
			SeedBalance{Owner: owner, Asset: "INR", Amount: 10_000_000},
			SeedBalance{Owner: owner, Asset: "TATA", Amount: 10_000_000},
		)
	}
	return Config{
		Markets:      []MarketConfig{{BaseAsset: "TATA", QuoteAsset: "INR"}},
		SeedBalances: seeds,
		Engine: Engine{
			RejectSelfTrade: false,
			QueueSize:       1024,
			RequestTimeout:  5 * time.Second,
		},
		Snapshot: Snapshot{
			Path:     "data/snapshot.json",
			Interval: 3 * time.Second,
		},
		Gateway: Gateway{
			Listen:         ":8000",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		TradeDBPath: "data/trades.db",
		LogFile:     "data/matchbook.log",
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("MB_LISTEN"); v != "" {
		cfg.Gateway.Listen = v
	}
	if v := os.Getenv("MB_ALLOWED_ORIGINS"); v != "" {
		cfg.Gateway.AllowedOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("MB_SNAPSHOT_PATH"); v != "" {
		cfg.Snapshot.Path = v
	}
	if ms := envInt("MB_SNAPSHOT_INTERVAL_MS"); ms > 0 {
		cfg.Snapshot.Interval = time.Duration(ms) * time.Millisecond
	}
	if ms := envInt("MB_REQUEST_TIMEOUT_MS"); ms > 0 {
		cfg.Engine.RequestTimeout = time.Duration(ms) * time.Millisecond
	}
	if n := envInt("MB_QUEUE_SIZE"); n > 0 {
		cfg.Engine.QueueSize = n
	}
	if v := os.Getenv("MB_REJECT_SELF_TRADE"); v != "" {
		cfg.Engine.RejectSelfTrade = v == "true"
	}
	if v := os.Getenv("MB_TRADE_DB"); v != "" {
		cfg.TradeDBPath = v
	}
	if v := os.Getenv("MB_LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	// Markets from a comma-separated list of BASE_QUOTE tickers,
	// e.g. "TATA_INR,RELIANCE_INR".
	if v := os.Getenv("MB_MARKETS"); v != "" {
		var markets []MarketConfig
		for _, ticker := range strings.Split(v, ",") {
			parts := strings.SplitN(strings.TrimSpace(ticker), "_", 2)
			if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
				continue
			}
			markets = append(markets, MarketConfig{BaseAsset: parts[0], QuoteAsset: parts[1]})
		}
		if len(markets) > 0 {
			cfg.Markets = markets
		}
	}

	return cfg
}

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

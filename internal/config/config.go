package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config настройки процесса, читаются из окружения (.env опционален)
type Config struct {
	AppPort   string
	LogLevel  string
	LogFormat string

	RPCURL          string
	ChainID         int64
	ContractAddress string
	PrivateKey      string
	Simulate        bool

	HouseEdge      float64
	CacheDuration  time.Duration
	DebounceWindow time.Duration
	MinLoading     time.Duration
	PollInterval   time.Duration
	SettleDelay    time.Duration
	SettleRetries  int
	RemoteTimeout  time.Duration

	RedisURL      string
	AllowedOrigin string

	SimBalance      decimal.Decimal
	SimConfirmDelay time.Duration
}

// Load читает .env (если есть) и переменные окружения
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppPort:   getEnv("HTTP_PORT", "8080"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		RPCURL:          getEnv("RPC_URL", "https://rpc.test2.btcs.network"),
		ChainID:         getInt64("CHAIN_ID", 1114),
		ContractAddress: os.Getenv("CONTRACT_ADDRESS"),
		PrivateKey:      os.Getenv("PRIVATE_KEY"),
		Simulate:        getBool("SIMULATE", false),

		HouseEdge:      getFloat("HOUSE_EDGE", 0.99),
		CacheDuration:  getDuration("CACHE_DURATION", 3*time.Second),
		DebounceWindow: getDuration("DEBOUNCE_WINDOW", 300*time.Millisecond),
		MinLoading:     getDuration("MIN_LOADING", 500*time.Millisecond),
		PollInterval:   getDuration("POLL_INTERVAL", 5*time.Second),
		SettleDelay:    getDuration("SETTLE_DELAY", 2*time.Second),
		SettleRetries:  int(getInt64("SETTLE_RETRIES", 3)),
		RemoteTimeout:  getDuration("REMOTE_TIMEOUT", 15*time.Second),

		RedisURL:      os.Getenv("REDIS_URL"),
		AllowedOrigin: os.Getenv("ALLOWED_ORIGIN"),

		SimBalance:      getDecimal("SIM_BALANCE", decimal.NewFromInt(100)),
		SimConfirmDelay: getDuration("SIM_CONFIRM_DELAY", 0),
	}
}

// JSONLogs true если нужен JSON вывод логов
func (c Config) JSONLogs() bool {
	return strings.EqualFold(c.LogFormat, "json")
}

// Validate проверяет значения, с которыми движок не сможет работать
func (c Config) Validate() error {
	var errs []error

	if c.HouseEdge <= 0 || c.HouseEdge > 1 {
		errs = append(errs, fmt.Errorf("HOUSE_EDGE должен быть в (0, 1], получили %v", c.HouseEdge))
	}
	if c.CacheDuration < 0 || c.DebounceWindow < 0 || c.MinLoading < 0 {
		errs = append(errs, errors.New("длительности кэша, debounce и загрузки не могут быть отрицательными"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("POLL_INTERVAL должен быть положительным"))
	}
	if c.SettleDelay <= 0 {
		errs = append(errs, errors.New("SETTLE_DELAY должен быть положительным"))
	}
	if c.SettleRetries < 0 {
		errs = append(errs, errors.New("SETTLE_RETRIES не может быть отрицательным"))
	}
	if c.RemoteTimeout <= 0 {
		errs = append(errs, errors.New("REMOTE_TIMEOUT должен быть положительным"))
	}
	if !c.Simulate {
		if c.RPCURL == "" {
			errs = append(errs, errors.New("RPC_URL не задан"))
		}
		if c.ContractAddress == "" {
			errs = append(errs, errors.New("CONTRACT_ADDRESS не задан"))
		}
		if c.PrivateKey == "" {
			errs = append(errs, errors.New("PRIVATE_KEY не задан"))
		}
	}

	return errors.Join(errs...)
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getInt64(key string, def int64) int64 {
	v, err := strconv.ParseInt(getEnv(key, ""), 10, 64)
	if err != nil {
		return def
	}
	return v
}

func getFloat(key string, def float64) float64 {
	v, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return def
	}
	return v
}

func getBool(key string, def bool) bool {
	v, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return def
	}
	return v
}

// getDuration принимает и "300ms", и голое число миллисекунд
func getDuration(key string, def time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return def
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func getDecimal(key string, def decimal.Decimal) decimal.Decimal {
	d, err := decimal.NewFromString(getEnv(key, ""))
	if err != nil {
		return def
	}
	return d
}

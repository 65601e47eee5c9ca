package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/Krchnk/valutatrade-hub/internal/apperrors"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type Config struct {
	DataDir       string
	StorageDriver string
	DBConfig      DBConfig
	Log           LogConfig
	Rates         RatesConfig
	Providers     ProvidersConfig
	HTTPPort      string
	JWTSecret     string
	Kafka         KafkaConfig
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

func (d DBConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Password, d.DBName)
}

type LogConfig struct {
	Dir         string
	File        string
	Level       string
	MaxBytes    int64
	BackupCount int
}

type RatesConfig struct {
	TTL            time.Duration
	UpdateInterval time.Duration
	BaseCurrency   string
	// Supported overrides the tracked currency list when non-empty.
	Supported []string
}

type ProvidersConfig struct {
	CoinGeckoURL       string
	ExchangeRateAPIURL string
	ExchangeRateAPIKey string
	Timeout            time.Duration
	Retries            int
	RetryDelay         time.Duration
	CryptoIDs          map[string]string
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// LoadConfig reads the optional .env file at envPath, then the optional JSON
// config file at configPath, then the process environment. A config file that
// exists but cannot be parsed yields apperrors.ErrConfigMalformed.
func LoadConfig(configPath, envPath string) (Config, error) {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil {
			logrus.WithError(err).Warn("failed to load env file, using env vars")
		}
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return Config{}, fmt.Errorf("%w: %s: %v", apperrors.ErrConfigMalformed, configPath, err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	}

	cfg := Config{
		DataDir:       v.GetString("DATA_DIR"),
		StorageDriver: strings.ToLower(v.GetString("STORAGE_DRIVER")),
		HTTPPort:      v.GetString("HTTP_PORT"),
		JWTSecret:     v.GetString("JWT_SECRET"),
		DBConfig: DBConfig{
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			DBName:   v.GetString("DB_NAME"),
		},
		Log: LogConfig{
			Dir:         v.GetString("LOGS_DIR"),
			File:        v.GetString("LOG_FILE"),
			Level:       v.GetString("LOG_LEVEL"),
			MaxBytes:    v.GetInt64("LOG_MAX_BYTES"),
			BackupCount: v.GetInt("LOG_BACKUP_COUNT"),
		},
		Rates: RatesConfig{
			TTL:            time.Duration(v.GetInt("RATES_TTL_SECONDS")) * time.Second,
			UpdateInterval: time.Duration(v.GetInt("UPDATE_INTERVAL_MINUTES")) * time.Minute,
			BaseCurrency:   strings.ToUpper(v.GetString("BASE_CURRENCY")),
			Supported:      upperAll(v.GetStringSlice("SUPPORTED_CURRENCIES")),
		},
		Providers: ProvidersConfig{
			CoinGeckoURL:       v.GetString("COINGECKO_URL"),
			ExchangeRateAPIURL: v.GetString("EXCHANGERATE_API_URL"),
			ExchangeRateAPIKey: v.GetString("EXCHANGERATE_API_KEY"),
			Timeout:            time.Duration(v.GetInt("API_TIMEOUT")) * time.Second,
			Retries:            v.GetInt("REQUEST_RETRIES"),
			RetryDelay:         time.Duration(v.GetFloat64("RETRY_DELAY") * float64(time.Second)),
			CryptoIDs:          v.GetStringMapString("CRYPTO_ID_MAP"),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(v.GetStringSlice("KAFKA_BROKERS")),
			Topic:   v.GetString("KAFKA_TOPIC"),
		},
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("DATA_DIR", "data")
	v.SetDefault("STORAGE_DRIVER", "json")
	v.SetDefault("HTTP_PORT", ":8080")
	v.SetDefault("JWT_SECRET", "your-secret-key")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "password")
	v.SetDefault("DB_NAME", "valutatrade")
	v.SetDefault("LOGS_DIR", "logs")
	v.SetDefault("LOG_FILE", "valutatrade.log")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_MAX_BYTES", 1048576)
	v.SetDefault("LOG_BACKUP_COUNT", 3)
	v.SetDefault("RATES_TTL_SECONDS", 300)
	v.SetDefault("UPDATE_INTERVAL_MINUTES", 5)
	v.SetDefault("BASE_CURRENCY", "USD")
	v.SetDefault("SUPPORTED_CURRENCIES", []string{})
	v.SetDefault("COINGECKO_URL", "https://api.coingecko.com/api/v3/simple/price")
	v.SetDefault("EXCHANGERATE_API_URL", "https://v6.exchangerate-api.com/v6")
	v.SetDefault("EXCHANGERATE_API_KEY", "")
	v.SetDefault("API_TIMEOUT", 10)
	v.SetDefault("REQUEST_RETRIES", 3)
	v.SetDefault("RETRY_DELAY", 1.0)
	v.SetDefault("CRYPTO_ID_MAP", map[string]string{
		"BTC": "bitcoin",
		"ETH": "ethereum",
		"SOL": "solana",
		"ADA": "cardano",
		"DOT": "polkadot",
	})
	v.SetDefault("KAFKA_BROKERS", []string{})
	v.SetDefault("KAFKA_TOPIC", "valutatrade.events")
}

func (c Config) validate() error {
	if c.Rates.TTL <= 0 {
		return fmt.Errorf("%w: RATES_TTL_SECONDS must be positive", apperrors.ErrConfigMalformed)
	}
	if c.Rates.UpdateInterval <= 0 {
		return fmt.Errorf("%w: UPDATE_INTERVAL_MINUTES must be positive", apperrors.ErrConfigMalformed)
	}
	if c.Providers.Retries < 1 {
		return fmt.Errorf("%w: REQUEST_RETRIES must be at least 1", apperrors.ErrConfigMalformed)
	}
	if c.StorageDriver != "json" && c.StorageDriver != "postgres" {
		return fmt.Errorf("%w: unknown STORAGE_DRIVER %q", apperrors.ErrConfigMalformed, c.StorageDriver)
	}
	return nil
}

func upperAll(in []string) []string {
	out := splitList(in)
	for i := range out {
		out[i] = strings.ToUpper(out[i])
	}
	return out
}

// splitList also accepts comma separated env values such as "a:9092,b:9092".
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, s := range strings.Split(item, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	HTTP struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"http"`
	LogLevel       string `mapstructure:"log_level"`
	Store          string `mapstructure:"store"`
	DataDir        string `mapstructure:"data_dir"`
	DBPath         string `mapstructure:"db_path"`
	SeedDemoAlerts bool   `mapstructure:"seed_demo_alerts"`

	Retention struct {
		Days     int           `mapstructure:"days"`
		Interval time.Duration `mapstructure:"interval"`
	} `mapstructure:"retention"`

	Diagnostics struct {
		DurationScale  float64           `mapstructure:"duration_scale"`
		ProbeTimeout   time.Duration     `mapstructure:"probe_timeout"`
		// HealthInterval paces node status polling.
		HealthInterval time.Duration     `mapstructure:"health_interval"`
		Nodes          map[string]string `mapstructure:"nodes"`
	} `mapstructure:"diagnostics"`

	MQTT struct {
		Broker      string `mapstructure:"broker"`
		ClientID    string `mapstructure:"client_id"`
		Username    string `mapstructure:"username"`
		Password    string `mapstructure:"password"`
		TopicPrefix string `mapstructure:"topic_prefix"`
	} `mapstructure:"mqtt"`

	Influx struct {
		URL    string `mapstructure:"url"`
		Token  string `mapstructure:"token"`
		Org    string `mapstructure:"org"`
		Bucket string `mapstructure:"bucket"`
	} `mapstructure:"influx"`

	Telegram struct {
		BotToken string `mapstructure:"bot_token"`
		ChatID   string `mapstructure:"chat_id"`
	} `mapstructure:"telegram"`

	Auth struct {
		JWTSecret string        `mapstructure:"jwt_secret"`
		TokenTTL  time.Duration `mapstructure:"token_ttl"`
	} `mapstructure:"auth"`
}

const (
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("store", StoreSQLite)
	v.SetDefault("data_dir", "./data")
	v.SetDefault("db_path", "")
	v.SetDefault("seed_demo_alerts", true)
	v.SetDefault("retention.days", 30)
	v.SetDefault("retention.interval", 6*time.Hour)
	v.SetDefault("diagnostics.duration_scale", 1.0)
	v.SetDefault("diagnostics.probe_timeout", 5*time.Second)
	v.SetDefault("diagnostics.health_interval", 30*time.Second)
	v.SetDefault("diagnostics.nodes", map[string]string{})
	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.client_id", "edgegrid")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.topic_prefix", "edgegrid")
	v.SetDefault("influx.url", "")
	v.SetDefault("influx.token", "")
	v.SetDefault("influx.org", "edgegrid")
	v.SetDefault("influx.bucket", "diagnostics")
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", 12*time.Hour)
}

// Load reads defaults, then the optional YAML file at path, then APP_*
// environment overrides (APP_HTTP_ADDR overrides http.addr).
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = v.GetString("config")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "edgegrid.db")
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Store {
	case StoreSQLite, StoreMemory:
	default:
		return fmt.Errorf("store %q: want %s or %s", c.Store, StoreSQLite, StoreMemory)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level %q: want debug, info, warn or error", c.LogLevel)
	}
	if c.Diagnostics.DurationScale <= 0 {
		return fmt.Errorf("diagnostics.duration_scale must be positive, got %v", c.Diagnostics.DurationScale)
	}
	if c.Diagnostics.HealthInterval <= 0 {
		return fmt.Errorf("diagnostics.health_interval must be positive, got %v", c.Diagnostics.HealthInterval)
	}
	if c.Diagnostics.ProbeTimeout <= 0 {
		return fmt.Errorf("diagnostics.probe_timeout must be positive, got %v", c.Diagnostics.ProbeTimeout)
	}
	if c.Retention.Interval <= 0 {
		return fmt.Errorf("retention.interval must be positive, got %v", c.Retention.Interval)
	}
	return nil
}

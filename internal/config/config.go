package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Backend struct {
	BaseURL string `mapstructure:"base_url"` // monitoring backend origin
}

type API struct {
	Addr string `mapstructure:"addr"` // local dashboard bind address
}

type Log struct {
	Dir    string `mapstructure:"dir"`
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"` // console encoder for dev
}

type View struct {
	Window      time.Duration `mapstructure:"window"`       // since = now - window
	GroupBy     string        `mapstructure:"group_by"`     // bucket granularity
	RawLimit    int           `mapstructure:"raw_limit"`    // raw-log fetch cap
	AutoRefresh time.Duration `mapstructure:"auto_refresh"` // 0 disables
}

type Sync struct {
	Debounce time.Duration `mapstructure:"debounce"` // per-entity write coalescing
}

type Config struct {
	Backend Backend `mapstructure:"backend"`
	API     API     `mapstructure:"api"`
	Log     Log     `mapstructure:"log"`
	View    View    `mapstructure:"view"`
	Sync    Sync    `mapstructure:"sync"`
}

// Load reads an optional yaml file, then lets environment variables
// (dot → underscore, e.g. BACKEND_BASE_URL) override. A .env file in the
// working directory is picked up first, best effort.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
		_ = v.ReadInConfig()
	}

	v.SetDefault("backend.base_url", "http://127.0.0.1:9100")
	v.SetDefault("api.addr", "127.0.0.1:8080")
	v.SetDefault("log.dir", "logs")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("view.window", "24h")
	v.SetDefault("view.group_by", "hour")
	v.SetDefault("view.raw_limit", 1000)
	v.SetDefault("view.auto_refresh", "30s")
	v.SetDefault("sync.debounce", "500ms")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if cfg.Backend.BaseURL == "" {
		return nil, errors.New("backend.base_url is required")
	}
	return &cfg, nil
}

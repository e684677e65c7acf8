package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// envPrefix 环境变量覆盖的统一前缀
const envPrefix = "ORCHIO"

// Loader 配置加载器。优先级: 默认值 → YAML 文件 → 环境变量。
type Loader struct {
	configPath string
}

// NewLoader 创建加载器
func NewLoader() *Loader {
	return &Loader{}
}

// WithConfigPath 指定 YAML 配置文件路径，为空时只用默认值与环境变量。
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// Load 执行加载
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	if l.configPath != "" {
		data, err := os.ReadFile(l.configPath)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", l.configPath, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", l.configPath, err)
		}
	}

	l.applyEnv(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv 逐字段应用环境变量覆盖。字段集合固定，不用反射。
func (l *Loader) applyEnv(cfg *Config) {
	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.Format, "LOG_FORMAT")

	setString(&cfg.Store.Backend, "STORE_BACKEND")
	setString(&cfg.Store.DSN, "STORE_DSN")
	setString(&cfg.Store.RedisAddr, "STORE_REDIS_ADDR")
	setString(&cfg.Store.RedisPassword, "STORE_REDIS_PASSWORD")
	setInt(&cfg.Store.RedisDB, "STORE_REDIS_DB")

	setStringSlice(&cfg.Safety.File.WhitelistRoots, "SAFETY_FILE_WHITELIST")
	setStringSlice(&cfg.Safety.File.BlacklistRoots, "SAFETY_FILE_BLACKLIST")
	setInt(&cfg.Safety.File.MaxContentBytes, "SAFETY_FILE_MAX_BYTES")
	setStringSlice(&cfg.Safety.API.WhitelistDomains, "SAFETY_API_WHITELIST")
	setStringSlice(&cfg.Safety.API.BlacklistDomains, "SAFETY_API_BLACKLIST")

	setDuration(&cfg.Engine.RunTimeout, "ENGINE_RUN_TIMEOUT")
	setFloat(&cfg.Engine.HTTPRateQPS, "ENGINE_HTTP_RATE_QPS")

	setString(&cfg.Planner.Provider, "PLANNER_PROVIDER")
	setString(&cfg.Planner.Model, "PLANNER_MODEL")
}

func validate(cfg *Config) error {
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log format %q", cfg.Log.Format)
	}
	if cfg.Engine.RunTimeout < 0 {
		return fmt.Errorf("engine run_timeout cannot be negative")
	}
	return nil
}

func envValue(key string) (string, bool) {
	return os.LookupEnv(envPrefix + "_" + key)
}

func setString(target *string, key string) {
	if v, ok := envValue(key); ok {
		*target = v
	}
}

func setStringSlice(target *[]string, key string) {
	if v, ok := envValue(key); ok {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		*target = out
	}
}

func setInt(target *int, key string) {
	if v, ok := envValue(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

func setFloat(target *float64, key string) {
	if v, ok := envValue(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*target = f
		}
	}
}

func setDuration(target *time.Duration, key string) {
	if v, ok := envValue(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*target = d
		}
	}
}

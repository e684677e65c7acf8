// =============================================================================
// 📦 Orchio 配置
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量 (ORCHIO_ 前缀)
// =============================================================================
package config

import (
	"time"

	"github.com/orchio-ai/orchio/safety"
	"github.com/orchio-ai/orchio/store"
)

// Config Orchio 的完整配置结构
type Config struct {
	// Log 日志配置
	Log LogConfig `yaml:"log"`

	// Store 计划仓储配置
	Store store.Config `yaml:"store"`

	// Safety 安全门配置
	Safety SafetyConfig `yaml:"safety"`

	// Engine 执行引擎配置
	Engine EngineConfig `yaml:"engine"`

	// Planner 规划配置
	Planner PlannerConfig `yaml:"planner"`
}

// LogConfig 日志配置
type LogConfig struct {
	// Level: debug | info | warn | error
	Level string `yaml:"level"`
	// Format: json | console
	Format string `yaml:"format"`
}

// SafetyConfig 安全门配置
type SafetyConfig struct {
	File safety.FileAccessConfig `yaml:"file"`
	API  safety.APIAccessConfig  `yaml:"api"`
}

// EngineConfig 执行引擎配置
type EngineConfig struct {
	// RunTimeout 整次运行的上限，零值表示无上限
	RunTimeout time.Duration `yaml:"run_timeout"`
	// HTTPRateQPS HTTP 执行器的全局速率上限，零值不限速
	HTTPRateQPS float64 `yaml:"http_rate_qps"`
}

// PlannerConfig 规划配置
type PlannerConfig struct {
	// Provider: rule_based | llm
	Provider string `yaml:"provider"`
	// Model LLM 规划器使用的模型名
	Model string `yaml:"model"`
}

// Default 返回内置默认配置
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Store: store.Config{
			Backend: "memory",
		},
		Safety: SafetyConfig{
			File: safety.DefaultFileAccessConfig(),
			API:  safety.DefaultAPIAccessConfig(),
		},
		Engine: EngineConfig{
			HTTPRateQPS: 10,
		},
		Planner: PlannerConfig{
			Provider: "rule_based",
		},
	}
}

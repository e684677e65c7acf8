// Package store 提供工作流计划的持久化仓储：内存、SQLite(GORM) 与
// Redis 三种后端实现同一个 Repository 契约。
package store

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/orchio-ai/orchio/plan"
)

// ErrNotFound GetByID 在计划不存在时返回
var ErrNotFound = errors.New("workflow plan not found")

// Repository 计划仓储契约。GetByID 对缺失返回 ErrNotFound，FindByID
// 返回 nil 不报错，Delete 幂等。
type Repository interface {
	Save(ctx context.Context, p *plan.WorkflowPlan) error
	GetByID(ctx context.Context, id string) (*plan.WorkflowPlan, error)
	FindByID(ctx context.Context, id string) (*plan.WorkflowPlan, error)
	FindAll(ctx context.Context) ([]*plan.WorkflowPlan, error)
	Exists(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// Config 仓储后端配置
type Config struct {
	// Backend: memory | sqlite | redis
	Backend string `yaml:"backend" json:"backend"`
	// DSN SQLite 文件路径，":memory:" 表示内存库
	DSN string `yaml:"dsn" json:"dsn"`
	// RedisAddr host:port
	RedisAddr     string `yaml:"redis_addr" json:"redis_addr"`
	RedisPassword string `yaml:"redis_password" json:"redis_password"`
	RedisDB       int    `yaml:"redis_db" json:"redis_db"`
}

// New 按配置创建仓储。未知后端是错误，空后端按内存处理。
func New(cfg Config, logger *zap.Logger) (Repository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryRepository(), nil
	case "sqlite":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = "orchio.db"
		}
		return NewSQLiteRepository(dsn, logger)
	case "redis":
		return NewRedisRepository(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
}

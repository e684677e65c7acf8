package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/orchio-ai/orchio/plan"
)

const planKeyPrefix = "orchio:plan:"

// RedisRepository go-redis 仓储，计划按 JSON 存在带前缀的键下。
type RedisRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisRepository 连接 Redis 并做一次连通性检查
func NewRedisRepository(addr, password string, db int, logger *zap.Logger) (*RedisRepository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	return &RedisRepository{
		client: client,
		logger: logger.With(zap.String("component", "plan_store")),
	}, nil
}

func planKey(id string) string { return planKeyPrefix + id }

func (r *RedisRepository) Save(ctx context.Context, p *plan.WorkflowPlan) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("plan with an id is required")
	}
	payload, err := p.ToJSON()
	if err != nil {
		return fmt.Errorf("serialize plan %s: %w", p.ID, err)
	}
	return r.client.Set(ctx, planKey(p.ID), payload, 0).Err()
}

func (r *RedisRepository) GetByID(ctx context.Context, id string) (*plan.WorkflowPlan, error) {
	payload, err := r.client.Get(ctx, planKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("plan %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return plan.PlanFromJSON([]byte(payload))
}

func (r *RedisRepository) FindByID(ctx context.Context, id string) (*plan.WorkflowPlan, error) {
	p, err := r.GetByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

func (r *RedisRepository) FindAll(ctx context.Context) ([]*plan.WorkflowPlan, error) {
	var plans []*plan.WorkflowPlan
	iter := r.client.Scan(ctx, 0, planKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		payload, err := r.client.Get(ctx, iter.Val()).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		p, err := plan.PlanFromJSON([]byte(payload))
		if err != nil {
			return nil, fmt.Errorf("key %s: %w", iter.Val(), err)
		}
		plans = append(plans, p)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return plans, nil
}

func (r *RedisRepository) Exists(ctx context.Context, id string) (bool, error) {
	n, err := r.client.Exists(ctx, planKey(id)).Result()
	return n > 0, err
}

func (r *RedisRepository) Delete(ctx context.Context, id string) error {
	return r.client.Del(ctx, planKey(id)).Err()
}

func (r *RedisRepository) Close() error {
	return r.client.Close()
}

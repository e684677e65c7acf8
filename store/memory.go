package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/orchio-ai/orchio/plan"
)

// MemoryRepository 进程内仓储。保存与读取都经过 JSON 往返，调用方
// 拿到的计划与仓储内部互不别名。
type MemoryRepository struct {
	mu    sync.RWMutex
	plans map[string]string
}

// NewMemoryRepository 创建内存仓储
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{plans: make(map[string]string)}
}

func (r *MemoryRepository) Save(_ context.Context, p *plan.WorkflowPlan) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("plan with an id is required")
	}
	payload, err := p.ToJSON()
	if err != nil {
		return fmt.Errorf("serialize plan %s: %w", p.ID, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plans[p.ID] = payload
	return nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id string) (*plan.WorkflowPlan, error) {
	r.mu.RLock()
	payload, ok := r.plans[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("plan %s: %w", id, ErrNotFound)
	}
	return plan.PlanFromJSON([]byte(payload))
}

func (r *MemoryRepository) FindByID(ctx context.Context, id string) (*plan.WorkflowPlan, error) {
	p, err := r.GetByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

func (r *MemoryRepository) FindAll(_ context.Context) ([]*plan.WorkflowPlan, error) {
	r.mu.RLock()
	payloads := make([]string, 0, len(r.plans))
	for _, payload := range r.plans {
		payloads = append(payloads, payload)
	}
	r.mu.RUnlock()

	plans := make([]*plan.WorkflowPlan, 0, len(payloads))
	for _, payload := range payloads {
		p, err := plan.PlanFromJSON([]byte(payload))
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	return plans, nil
}

func (r *MemoryRepository) Exists(_ context.Context, id string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.plans[id]
	return ok, nil
}

func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.plans, id)
	return nil
}

func (r *MemoryRepository) Close() error { return nil }

package rules

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Observer 接收每次校验的结果，用于指标上报。
type Observer interface {
	ObserveRuleValidation(passed bool, rejectionRate float64)
}

// Stats 统计快照
type Stats struct {
	Total         int64   `json:"total"`
	Passed        int64   `json:"passed"`
	Rejected      int64   `json:"rejected"`
	RejectionRate float64 `json:"rejection_rate"`
}

// Engine 决策规则引擎。规则表与统计计数器在并发校验和并发增删规则下
// 保持一致；规则内部的 panic 被吸收为校验失败（fail-closed），绝不让
// 内部异常静默放行。
type Engine struct {
	mu        sync.RWMutex
	rules     []Rule
	total     int64
	passed    int64
	rejected  int64
	threshold float64
	observer  Observer
	logger    *zap.Logger
}

// NewEngine 创建规则引擎，拒绝率阈值默认 0.5。
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		threshold: 0.5,
		logger:    logger.With(zap.String("component", "rule_engine")),
	}
}

// SetThreshold 调整拒绝率告警阈值
func (e *Engine) SetThreshold(threshold float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.threshold = threshold
}

// SetObserver 挂接指标观察者
func (e *Engine) SetObserver(observer Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observer = observer
}

// AddDecisionRule 添加规则。缺条件的规则拒绝加入。
func (e *Engine) AddDecisionRule(rule Rule) error {
	if rule.ID == "" {
		return fmt.Errorf("rule id is required")
	}
	if rule.Condition == nil {
		return fmt.Errorf("rule %s: condition is required", rule.ID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, existing := range e.rules {
		if existing.ID == rule.ID {
			return fmt.Errorf("rule %s already registered", rule.ID)
		}
	}
	e.rules = append(e.rules, rule)
	return nil
}

// RemoveDecisionRule 按ID移除规则，不存在时返回 false。
func (e *Engine) RemoveDecisionRule(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, rule := range e.rules {
		if rule.ID == id {
			e.rules = append(e.rules[:i], e.rules[i+1:]...)
			return true
		}
	}
	return false
}

// ListDecisionRules 返回按优先级降序的规则副本，同优先级保持加入顺序。
func (e *Engine) ListDecisionRules() []Rule {
	e.mu.RLock()
	ordered := make([]Rule, len(e.rules))
	copy(ordered, e.rules)
	e.mu.RUnlock()

	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})
	return ordered
}

// ValidateDecision 按优先级执行全部规则：所有条件都会运行，错误累积，
// 不短路。条件、文案或修正回调中的 panic 转为校验错误。
func (e *Engine) ValidateDecision(payload map[string]any, sessionID string) *ValidationResult {
	result := &ValidationResult{Valid: true, SessionID: sessionID}

	for _, rule := range e.ListDecisionRules() {
		passed, err := e.runCondition(rule, payload)
		if err != nil {
			result.Valid = false
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		if passed {
			continue
		}
		result.Valid = false
		result.Errors = append(result.Errors, e.renderMessage(rule, payload))
		if correction := e.renderCorrection(rule, payload); correction != nil {
			result.Corrections = append(result.Corrections, correction)
		}
	}

	e.record(result.Valid)
	if !result.Valid {
		e.logger.Debug("decision rejected",
			zap.String("session_id", sessionID),
			zap.Int("error_count", len(result.Errors)),
		)
	}
	return result
}

func (e *Engine) runCondition(rule Rule, payload map[string]any) (passed bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			passed = false
			err = fmt.Errorf("rule %s: condition panicked: %v", rule.ID, r)
			e.logger.Warn("rule condition panicked",
				zap.String("rule_id", rule.ID),
				zap.Any("panic", r),
			)
		}
	}()
	return rule.Condition(payload), nil
}

func (e *Engine) renderMessage(rule Rule, payload map[string]any) (msg string) {
	defer func() {
		if r := recover(); r != nil {
			msg = fmt.Sprintf("rule %s: message callback panicked: %v", rule.ID, r)
		}
	}()
	if rule.Message == nil {
		return fmt.Sprintf("rule %s rejected the decision", rule.ID)
	}
	return rule.Message(payload)
}

func (e *Engine) renderCorrection(rule Rule, payload map[string]any) (correction map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			correction = map[string]any{
				"error": fmt.Sprintf("rule %s: correction callback panicked: %v", rule.ID, r),
			}
		}
	}()
	if rule.Correction == nil {
		return nil
	}
	return rule.Correction(payload)
}

func (e *Engine) record(valid bool) {
	e.mu.Lock()
	e.total++
	if valid {
		e.passed++
	} else {
		e.rejected++
	}
	rate := float64(e.rejected) / float64(e.total)
	observer := e.observer
	e.mu.Unlock()

	if observer != nil {
		observer.ObserveRuleValidation(valid, rate)
	}
}

// Stats 返回统计快照
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	stats := Stats{Total: e.total, Passed: e.passed, Rejected: e.rejected}
	if stats.Total > 0 {
		stats.RejectionRate = float64(stats.Rejected) / float64(stats.Total)
	}
	return stats
}

// IsRejectionRateHigh 拒绝率是否超过阈值。无样本时为 false。
func (e *Engine) IsRejectionRateHigh() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.total == 0 {
		return false
	}
	return float64(e.rejected)/float64(e.total) > e.threshold
}

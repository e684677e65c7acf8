package rules

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func alwaysPass() Condition {
	return func(map[string]any) bool { return true }
}

func alwaysReject() Condition {
	return func(map[string]any) bool { return false }
}

func TestAddDecisionRuleValidation(t *testing.T) {
	e := NewEngine(zap.NewNop())

	require.Error(t, e.AddDecisionRule(Rule{ID: "", Condition: alwaysPass()}))
	require.Error(t, e.AddDecisionRule(Rule{ID: "r1"}))
	require.NoError(t, e.AddDecisionRule(Rule{ID: "r1", Condition: alwaysPass()}))
	assert.Error(t, e.AddDecisionRule(Rule{ID: "r1", Condition: alwaysPass()}))
}

func TestRemoveDecisionRule(t *testing.T) {
	e := NewEngine(zap.NewNop())
	require.NoError(t, e.AddDecisionRule(Rule{ID: "r1", Condition: alwaysPass()}))

	assert.True(t, e.RemoveDecisionRule("r1"))
	assert.False(t, e.RemoveDecisionRule("r1"))
	assert.Empty(t, e.ListDecisionRules())
}

func TestListDecisionRulesPriorityOrder(t *testing.T) {
	e := NewEngine(zap.NewNop())
	require.NoError(t, e.AddDecisionRule(Rule{ID: "low", Priority: 1, Condition: alwaysPass()}))
	require.NoError(t, e.AddDecisionRule(Rule{ID: "high", Priority: 10, Condition: alwaysPass()}))
	require.NoError(t, e.AddDecisionRule(Rule{ID: "mid_a", Priority: 5, Condition: alwaysPass()}))
	require.NoError(t, e.AddDecisionRule(Rule{ID: "mid_b", Priority: 5, Condition: alwaysPass()}))

	ordered := e.ListDecisionRules()
	require.Len(t, ordered, 4)
	assert.Equal(t, "high", ordered[0].ID)
	// 同优先级保持加入顺序
	assert.Equal(t, "mid_a", ordered[1].ID)
	assert.Equal(t, "mid_b", ordered[2].ID)
	assert.Equal(t, "low", ordered[3].ID)
}

func TestValidateDecisionRunsAllRules(t *testing.T) {
	e := NewEngine(zap.NewNop())
	var ran []string
	for _, id := range []string{"a", "b", "c"} {
		id := id
		require.NoError(t, e.AddDecisionRule(Rule{
			ID: id,
			Condition: func(map[string]any) bool {
				ran = append(ran, id)
				return false
			},
			Message: StaticMessage("rejected by " + id),
		}))
	}

	result := e.ValidateDecision(map[string]any{}, "s1")
	require.False(t, result.Valid)
	// 不短路：三条规则全部执行，错误全部累积
	assert.Len(t, ran, 3)
	assert.Len(t, result.Errors, 3)
	assert.Equal(t, "s1", result.SessionID)
}

func TestValidateDecisionFailClosedOnPanic(t *testing.T) {
	e := NewEngine(zap.NewNop())
	require.NoError(t, e.AddDecisionRule(Rule{
		ID: "panics",
		Condition: func(map[string]any) bool {
			panic("boom")
		},
	}))

	result := e.ValidateDecision(map[string]any{}, "")
	require.False(t, result.Valid)
	assert.Contains(t, result.Errors[0], "panicked")
}

func TestValidateDecisionMessageAndCorrectionPanics(t *testing.T) {
	e := NewEngine(zap.NewNop())
	require.NoError(t, e.AddDecisionRule(Rule{
		ID:        "bad_callbacks",
		Condition: alwaysReject(),
		Message: func(map[string]any) string {
			panic("message boom")
		},
		Correction: func(map[string]any) map[string]any {
			panic("correction boom")
		},
	}))

	result := e.ValidateDecision(map[string]any{}, "")
	require.False(t, result.Valid)
	assert.Contains(t, result.Errors[0], "message callback panicked")
	require.Len(t, result.Corrections, 1)
	assert.Contains(t, result.Corrections[0]["error"], "correction callback panicked")
}

func TestRejectionRateAllRejected(t *testing.T) {
	e := NewEngine(zap.NewNop())
	require.NoError(t, e.AddDecisionRule(Rule{
		ID:        "deny_all",
		Condition: alwaysReject(),
		Message:   StaticMessage("denied"),
	}))

	for i := 0; i < 10; i++ {
		e.ValidateDecision(map[string]any{}, "")
	}

	stats := e.Stats()
	assert.Equal(t, int64(10), stats.Total)
	assert.Equal(t, int64(0), stats.Passed)
	assert.Equal(t, int64(10), stats.Rejected)
	assert.Equal(t, 1.0, stats.RejectionRate)
	assert.True(t, e.IsRejectionRateHigh())
}

func TestRejectionRateThreshold(t *testing.T) {
	e := NewEngine(zap.NewNop())
	assert.False(t, e.IsRejectionRateHigh())

	require.NoError(t, e.AddDecisionRule(Rule{
		ID: "mixed",
		Condition: func(payload map[string]any) bool {
			ok, _ := payload["ok"].(bool)
			return ok
		},
		Message: StaticMessage("denied"),
	}))

	for i := 0; i < 8; i++ {
		e.ValidateDecision(map[string]any{"ok": true}, "")
	}
	for i := 0; i < 2; i++ {
		e.ValidateDecision(map[string]any{"ok": false}, "")
	}

	stats := e.Stats()
	assert.InDelta(t, 0.2, stats.RejectionRate, 1e-9)
	assert.False(t, e.IsRejectionRateHigh())

	e.SetThreshold(0.1)
	assert.True(t, e.IsRejectionRateHigh())
}

func TestConcurrentValidationAndMutation(t *testing.T) {
	e := NewEngine(zap.NewNop())
	require.NoError(t, e.AddDecisionRule(Rule{ID: "base", Condition: alwaysPass()}))

	var wg sync.WaitGroup
	const workers = 8
	const iterations = 50

	for w := 0; w < workers; w++ {
		w := w
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				e.ValidateDecision(map[string]any{"ok": true}, "")
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				id := fmt.Sprintf("w%d_r%d", w, i)
				_ = e.AddDecisionRule(Rule{ID: id, Condition: alwaysPass()})
				e.RemoveDecisionRule(id)
			}
		}()
	}
	wg.Wait()

	stats := e.Stats()
	assert.Equal(t, int64(workers*iterations), stats.Total)
	assert.Equal(t, stats.Total, stats.Passed+stats.Rejected)
	// 临时规则全部移除后只剩基础规则
	assert.Len(t, e.ListDecisionRules(), 1)
}

type recordingObserver struct {
	mu    sync.Mutex
	calls int
	last  float64
}

func (o *recordingObserver) ObserveRuleValidation(passed bool, rate float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	o.last = rate
}

func TestObserverReceivesEveryValidation(t *testing.T) {
	e := NewEngine(zap.NewNop())
	observer := &recordingObserver{}
	e.SetObserver(observer)
	require.NoError(t, e.AddDecisionRule(Rule{ID: "deny", Condition: alwaysReject(), Message: StaticMessage("denied")}))

	for i := 0; i < 3; i++ {
		e.ValidateDecision(map[string]any{}, "")
	}

	assert.Equal(t, 3, observer.calls)
	assert.Equal(t, 1.0, observer.last)
}

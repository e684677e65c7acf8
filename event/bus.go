package event

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Type 事件类型
type Type string

const (
	TypeDecisionMade        Type = "decision_made"
	TypeHumanInputRequested Type = "human_input_requested"
	TypeNodeExecuted        Type = "node_executed"
	TypeRunCompleted        Type = "run_completed"
)

// subscriptionCounter 用于生成唯一订阅 ID，避免并发碰撞
var subscriptionCounter int64

// Event 事件接口
type Event interface {
	Timestamp() time.Time
	Type() Type
}

// Handler 事件处理器
type Handler func(Event)

// Subscription is the handle returned by Subscribe. Cancelling it
// removes the handler; cancelling twice is a no-op.
type Subscription struct {
	id   string
	bus  *InMemoryBus
	once sync.Once
}

// ID returns the unique subscription identifier.
func (s *Subscription) ID() string {
	return s.id
}

// Cancel removes the subscription from the bus.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.bus.unsubscribe(s.id)
	})
}

// Bus 定义事件总线接口。Publish 失败不允许中断工作流执行，调用方只记录日志。
type Bus interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(eventType Type, handler Handler) *Subscription
	Stop()
}

// InMemoryBus 进程内事件总线实现
type InMemoryBus struct {
	mu           sync.RWMutex
	handlers     map[Type]map[string]Handler
	eventChannel chan Event
	done         chan struct{}
	stopOnce     sync.Once
	logger       *zap.Logger
}

// NewBus 创建进程内事件总线
func NewBus(logger *zap.Logger) *InMemoryBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	bus := &InMemoryBus{
		handlers:     make(map[Type]map[string]Handler),
		eventChannel: make(chan Event, 100),
		done:         make(chan struct{}),
		logger:       logger.With(zap.String("component", "event_bus")),
	}
	go bus.processEvents()
	return bus
}

// Publish 发布事件。总线停止后返回错误；通道满时丢弃并返回错误，
// 两种情况都不应中断调用方的执行。
func (b *InMemoryBus) Publish(ctx context.Context, event Event) error {
	// 先看停止信号，避免向已退出的分发循环入队
	select {
	case <-b.done:
		return fmt.Errorf("event bus stopped")
	default:
	}
	select {
	case b.eventChannel <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		b.logger.Warn("event channel full, dropping event",
			zap.String("event_type", string(event.Type())),
		)
		return fmt.Errorf("event channel full")
	}
}

// Subscribe 订阅事件，返回可取消的订阅句柄
func (b *InMemoryBus) Subscribe(eventType Type, handler Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.handlers[eventType] == nil {
		b.handlers[eventType] = make(map[string]Handler)
	}

	id := fmt.Sprintf("%s-%d", eventType, atomic.AddInt64(&subscriptionCounter, 1))
	b.handlers[eventType][id] = handler
	return &Subscription{id: id, bus: b}
}

func (b *InMemoryBus) unsubscribe(subscriptionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, handlers := range b.handlers {
		if _, ok := handlers[subscriptionID]; ok {
			delete(handlers, subscriptionID)
			if len(handlers) == 0 {
				delete(b.handlers, eventType)
			}
			return
		}
	}
}

// processEvents 处理事件
func (b *InMemoryBus) processEvents() {
	for {
		select {
		case event := <-b.eventChannel:
			b.mu.RLock()
			src := b.handlers[event.Type()]
			handlers := make([]Handler, 0, len(src))
			for _, h := range src {
				handlers = append(handlers, h)
			}
			b.mu.RUnlock()

			for _, handler := range handlers {
				h := handler
				go func() {
					defer func() {
						if r := recover(); r != nil {
							b.logger.Error("event handler panicked", zap.Any("recover", r))
						}
					}()
					h(event)
				}()
			}
		case <-b.done:
			return
		}
	}
}

// Stop 停止事件总线
func (b *InMemoryBus) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
	})
}

package events

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Wildcard 订阅全部事件类型
const Wildcard = "*"

// Event 通话事件
type Event struct {
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"` // bridgeId，来自 HTTP 处理器时为空
	Data      map[string]interface{} `json:"data"`
}

// EventHandler 事件处理器，返回的错误只记录
type EventHandler func(event Event) error

// EventBus 进程内事件总线，处理器在独立 goroutine 中执行
type EventBus struct {
	mu       sync.RWMutex
	handlers map[string][]EventHandler
	logger   *zap.Logger
}

// NewEventBus 创建事件总线，logger 为空时不输出日志
func NewEventBus(logger *zap.Logger) *EventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventBus{
		handlers: make(map[string][]EventHandler),
		logger:   logger.Named("events"),
	}
}

// Subscribe 订阅事件，eventType 为 Wildcard 时接收所有事件
func (bus *EventBus) Subscribe(eventType string, handler EventHandler) {
	bus.mu.Lock()
	bus.handlers[eventType] = append(bus.handlers[eventType], handler)
	bus.mu.Unlock()
	bus.logger.Debug("handler subscribed", zap.String("eventType", eventType))
}

// Emit 以当前时间发布事件
func (bus *EventBus) Emit(eventType, source string, data map[string]interface{}) {
	bus.Publish(Event{Type: eventType, Source: source, Data: data})
}

// Publish 发布事件，nil 总线上调用无效果
func (bus *EventBus) Publish(event Event) {
	if bus == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	bus.mu.RLock()
	targets := make([]EventHandler, 0, len(bus.handlers[event.Type])+len(bus.handlers[Wildcard]))
	targets = append(targets, bus.handlers[event.Type]...)
	targets = append(targets, bus.handlers[Wildcard]...)
	bus.mu.RUnlock()

	if len(targets) == 0 {
		return
	}
	for _, h := range targets {
		go bus.dispatch(h, event)
	}
}

func (bus *EventBus) dispatch(h EventHandler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			bus.logger.Error("event handler panicked",
				zap.String("eventType", event.Type),
				zap.String("source", event.Source),
				zap.Error(fmt.Errorf("%v", r)))
		}
	}()
	if err := h(event); err != nil {
		bus.logger.Warn("event handler failed",
			zap.String("eventType", event.Type),
			zap.String("source", event.Source),
			zap.Error(err))
	}
}

package listeners

import (
	"github.com/logiccrew/OutCalling/pkg/events"
	"github.com/logiccrew/OutCalling/pkg/logger"
	"github.com/logiccrew/OutCalling/pkg/metrics"
	"go.uber.org/zap"
)

// InitCallListener 订阅通话生命周期事件，更新指标并记录日志
func InitCallListener(bus *events.EventBus, m *metrics.Metrics) {
	bus.Subscribe(events.BridgeOpened, func(e events.Event) error {
		m.BridgeOpened()
		return nil
	})
	bus.Subscribe(events.BridgeClosed, func(e events.Event) error {
		m.BridgeClosed()
		return nil
	})

	bus.Subscribe(events.StreamStarted, func(e events.Event) error {
		m.RecordStream("started")
		return nil
	})
	bus.Subscribe(events.StreamStopped, func(e events.Event) error {
		m.RecordStream("stopped")
		return nil
	})

	bus.Subscribe(events.AdapterConnected, func(e events.Event) error {
		m.RecordHandshake("success")
		return nil
	})
	bus.Subscribe(events.AdapterFailed, func(e events.Event) error {
		m.RecordHandshake("failure")
		logger.Warn("convai handshake failed, call continues without agent",
			zap.String("bridgeId", e.Source),
			zap.Any("error", e.Data["error"]))
		return nil
	})

	bus.Subscribe(events.BookingSucceeded, func(e events.Event) error {
		m.RecordBooking("success")
		logger.Info("booking succeeded", zap.String("bridgeId", e.Source), zap.Any("callSid", e.Data["callSid"]))
		return nil
	})
	bus.Subscribe(events.BookingFailed, func(e events.Event) error {
		m.RecordBooking("failure")
		return nil
	})

	bus.Subscribe(events.CallPlaced, func(e events.Event) error {
		result, _ := e.Data["result"].(string)
		if result == "" {
			result = "unknown"
		}
		m.RecordCallPlaced(result)
		return nil
	})

	logger.Info("call listener initialized")
}

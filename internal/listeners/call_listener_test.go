package listeners

import (
	"testing"
	"time"

	"github.com/logiccrew/OutCalling/pkg/events"
	"github.com/logiccrew/OutCalling/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// gather 读取指定指标族的样本值之和
func gather(t *testing.T, m *metrics.Metrics, name string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	var total float64
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, metric := range f.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				total += metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				total += metric.GetGauge().GetValue()
			}
		}
	}
	return total
}

func TestInitCallListener(t *testing.T) {
	bus := events.NewEventBus(zap.NewNop())
	m := metrics.NewMetrics()
	InitCallListener(bus, m)

	bus.Publish(events.Event{Type: events.BridgeOpened, Source: "b1"})
	bus.Publish(events.Event{Type: events.BridgeOpened, Source: "b2"})
	bus.Publish(events.Event{Type: events.BridgeClosed, Source: "b1"})
	bus.Publish(events.Event{Type: events.AdapterFailed, Source: "b2", Data: map[string]interface{}{"error": "401"}})
	bus.Publish(events.Event{Type: events.BookingSucceeded, Source: "b2", Data: map[string]interface{}{"callSid": "CA1"}})
	bus.Publish(events.Event{Type: events.CallPlaced, Data: map[string]interface{}{"result": "success"}})

	assert.Eventually(t, func() bool {
		return gather(t, m, "outcalling_active_bridges") == 1 &&
			gather(t, m, "outcalling_convai_handshakes_total") == 1 &&
			gather(t, m, "outcalling_bookings_total") == 1 &&
			gather(t, m, "outcalling_outbound_calls_total") == 1
	}, time.Second, 5*time.Millisecond)
}

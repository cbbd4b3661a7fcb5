package events

// 通话生命周期事件
const (
	BridgeOpened     = "bridge.opened"
	BridgeClosed     = "bridge.closed"
	StreamStarted    = "stream.started"
	StreamStopped    = "stream.stopped"
	AdapterConnected = "adapter.connected"
	AdapterFailed    = "adapter.failed"
	BookingSucceeded = "booking.succeeded"
	BookingFailed    = "booking.failed"
	CallPlaced       = "call.placed"
)

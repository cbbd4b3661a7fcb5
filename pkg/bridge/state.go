package bridge

import (
	"github.com/logiccrew/OutCalling/pkg/intent"
)

// Phase 桥接生命周期：Idle -> Active -> Closed，Closed 为终态
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseActive
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseActive:
		return "active"
	case PhaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SessionState 单通电话的会话状态快照
type SessionState struct {
	Phase            Phase
	StreamSid        string
	CallSid          string
	CustomParameters map[string]string
	Intent           intent.BookingIntent
	BookingTriggered bool
	AdapterOpen      bool
}

func copyParams(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

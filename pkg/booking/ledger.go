package booking

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// Ledger 按 callSid 记录已触发的预约，同一通话重连媒体流也不会重复预约
type Ledger struct {
	store *cache.Cache
}

// NewLedger 创建预约台账，记录在 ttl 后过期
func NewLedger(ttl time.Duration) *Ledger {
	return &Ledger{store: cache.New(ttl, 2*ttl)}
}

// Claim 占用 callSid，已被占用时返回 false
func (l *Ledger) Claim(callSid string) bool {
	return l.store.Add(callSid, time.Now(), cache.DefaultExpiration) == nil
}

// Booked 是否已为该通话触发过预约
func (l *Ledger) Booked(callSid string) bool {
	_, ok := l.store.Get(callSid)
	return ok
}

// Count 当前记录数
func (l *Ledger) Count() int {
	return l.store.ItemCount()
}

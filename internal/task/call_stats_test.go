package task

import (
	"testing"

	"github.com/logiccrew/OutCalling/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type staticCount int

func (s staticCount) ActiveCount() int { return int(s) }
func (s staticCount) Count() int       { return int(s) }

func TestStartCallStats(t *testing.T) {
	c, err := StartCallStats("@every 1h", staticCount(2), nil)
	require.NoError(t, err)
	c.Stop()

	_, err = StartCallStats("every now and then", staticCount(0), nil)
	assert.Error(t, err)
}

func TestReportCallStats(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	prev := logger.Lg
	logger.Lg = zap.New(core)
	t.Cleanup(func() { logger.Lg = prev })

	ReportCallStats(staticCount(3), staticCount(1))

	entries := logs.FilterMessage("Call stats").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(3), entries[0].ContextMap()["activeCalls"])
	assert.Equal(t, int64(1), entries[0].ContextMap()["recentBookings"])
}

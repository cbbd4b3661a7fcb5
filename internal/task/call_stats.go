package task

import (
	"github.com/logiccrew/OutCalling/pkg/logger"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ActiveCounter 提供活跃媒体流数量
type ActiveCounter interface {
	ActiveCount() int
}

// BookingCounter 提供台账中的预约数量
type BookingCounter interface {
	Count() int
}

// StartCallStats 按 schedule 定时记录活跃通话与近期预约数量
// 返回的 cron 由调用方在退出时 Stop
func StartCallStats(schedule string, calls ActiveCounter, bookings BookingCounter) (*cron.Cron, error) {
	c := cron.New()

	_, err := c.AddFunc(schedule, func() {
		ReportCallStats(calls, bookings)
	})
	if err != nil {
		return nil, err
	}

	c.Start()
	logger.Info("Call stats reporter started", zap.String("schedule", schedule))
	return c, nil
}

// ReportCallStats 记录一次统计
func ReportCallStats(calls ActiveCounter, bookings BookingCounter) {
	fields := []zap.Field{zap.Int("activeCalls", calls.ActiveCount())}
	if bookings != nil {
		fields = append(fields, zap.Int("recentBookings", bookings.Count()))
	}
	logger.Info("Call stats", fields...)
}

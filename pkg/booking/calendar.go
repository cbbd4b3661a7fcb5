package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/logiccrew/OutCalling/pkg/intent"
	"go.uber.org/zap"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// ErrNoDate 意图中没有日期，无法创建日程
var ErrNoDate = errors.New("booking intent has no date")

// Confirmation 日程创建结果
type Confirmation struct {
	EventID string
	Link    string
	Start   time.Time
	End     time.Time
}

// CalendarConfig 日历配置
type CalendarConfig struct {
	CredentialsFile string
	CalendarID      string
	DefaultTimeZone string
	DefaultDuration int // 分钟
}

// GoogleCalendar 基于服务账号的 Google Calendar 客户端
type GoogleCalendar struct {
	svc    *calendar.Service
	cfg    CalendarConfig
	logger *zap.Logger
}

// NewGoogleCalendar 使用服务账号凭据创建客户端
func NewGoogleCalendar(ctx context.Context, cfg CalendarConfig, logger *zap.Logger) (*GoogleCalendar, error) {
	svc, err := calendar.NewService(ctx,
		option.WithCredentialsFile(cfg.CredentialsFile),
		option.WithScopes(calendar.CalendarScope),
	)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	return &GoogleCalendar{svc: svc, cfg: cfg, logger: logger}, nil
}

// CreateEvent 根据预约意图创建日程
func (g *GoogleCalendar) CreateEvent(ctx context.Context, in intent.BookingIntent) (*Confirmation, error) {
	event, start, end, err := buildEvent(in, g.cfg)
	if err != nil {
		return nil, err
	}

	created, err := g.svc.Events.Insert(g.cfg.CalendarID, event).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("insert calendar event: %w", err)
	}
	g.logger.Info("calendar event created",
		zap.String("eventId", created.Id),
		zap.String("link", created.HtmlLink))
	return &Confirmation{EventID: created.Id, Link: created.HtmlLink, Start: start, End: end}, nil
}

// buildEvent 意图转日程：结束时间 = 开始 + 时长，缺省时长与时区取配置
func buildEvent(in intent.BookingIntent, cfg CalendarConfig) (*calendar.Event, time.Time, time.Time, error) {
	if !in.Has(intent.FieldDate) {
		return nil, time.Time{}, time.Time{}, ErrNoDate
	}

	tz := in.TimeZone
	if tz == "" {
		tz = cfg.DefaultTimeZone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		tz = cfg.DefaultTimeZone
		if loc, err = time.LoadLocation(tz); err != nil {
			return nil, time.Time{}, time.Time{}, fmt.Errorf("load time zone %q: %w", tz, err)
		}
	}

	duration := in.Duration
	if duration <= 0 {
		duration = cfg.DefaultDuration
	}

	// 口述时间按预约时区的墙上时间解释
	d := in.Date
	start := time.Date(d.Year(), d.Month(), d.Day(), d.Hour(), d.Minute(), 0, 0, loc)
	end := start.Add(time.Duration(duration) * time.Minute)

	name := in.Name
	if name == "" {
		name = "caller"
	}
	description := "Booked by voice assistant."
	if in.Email != "" {
		description += " Email: " + in.Email
	}

	event := &calendar.Event{
		Summary:     "Meeting with " + name,
		Description: description,
		Start:       &calendar.EventDateTime{DateTime: start.Format(time.RFC3339), TimeZone: tz},
		End:         &calendar.EventDateTime{DateTime: end.Format(time.RFC3339), TimeZone: tz},
	}
	if in.Email != "" {
		event.Attendees = []*calendar.EventAttendee{{Email: in.Email, DisplayName: in.Name}}
	}
	return event, start, end, nil
}

// LogCalendar 不调用外部服务，只记录将要创建的日程（CALENDAR_ENABLED=false）
type LogCalendar struct {
	cfg    CalendarConfig
	logger *zap.Logger
}

// NewLogCalendar 创建仅记录日志的日历
func NewLogCalendar(cfg CalendarConfig, logger *zap.Logger) *LogCalendar {
	return &LogCalendar{cfg: cfg, logger: logger}
}

// CreateEvent 构建日程并记录
func (l *LogCalendar) CreateEvent(_ context.Context, in intent.BookingIntent) (*Confirmation, error) {
	event, start, end, err := buildEvent(in, l.cfg)
	if err != nil {
		return nil, err
	}
	l.logger.Info("calendar disabled, event not created",
		zap.String("summary", event.Summary),
		zap.Time("start", start),
		zap.Time("end", end))
	return &Confirmation{Start: start, End: end}, nil
}

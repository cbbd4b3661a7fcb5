package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/logiccrew/OutCalling/pkg/errhandler"
	"github.com/logiccrew/OutCalling/pkg/intent"
	"go.uber.org/zap"
)

// ErrAlreadyBooked 该通话已经触发过预约
var ErrAlreadyBooked = errors.New("call already booked")

// EventCreator 日程创建方
type EventCreator interface {
	CreateEvent(ctx context.Context, in intent.BookingIntent) (*Confirmation, error)
}

// ContactNotifier 联系人推送方
type ContactNotifier interface {
	Notify(ctx context.Context, name, email string) error
}

// Service 预约服务：台账去重 -> 创建日程 -> 推送联系人
type Service struct {
	calendar EventCreator
	contacts ContactNotifier
	ledger   *Ledger
	logger   *zap.Logger
}

// NewService 创建预约服务，contacts 可为 nil
func NewService(calendar EventCreator, contacts ContactNotifier, ledger *Ledger, logger *zap.Logger) *Service {
	return &Service{calendar: calendar, contacts: contacts, ledger: ledger, logger: logger}
}

// Book 创建预约，失败不重试
func (s *Service) Book(ctx context.Context, callSid string, in intent.BookingIntent) error {
	if callSid != "" && s.ledger != nil && !s.ledger.Claim(callSid) {
		return ErrAlreadyBooked
	}

	conf, err := s.calendar.CreateEvent(ctx, in)
	if err != nil {
		return errhandler.New(errhandler.KindCollaborator, "calendar", "create event", err)
	}
	s.logger.Info("booking confirmed",
		zap.String("callSid", callSid),
		zap.String("eventId", conf.EventID),
		zap.Time("start", conf.Start))

	// 联系人推送失败不影响预约结果
	if s.contacts != nil && (in.Name != "" || in.Email != "") {
		if err := s.contacts.Notify(ctx, in.Name, in.Email); err != nil {
			errhandler.Log(s.logger, errhandler.New(errhandler.KindCollaborator, "contacts", "notify",
				fmt.Errorf("call %s: %w", callSid, err)))
		}
	}
	return nil
}

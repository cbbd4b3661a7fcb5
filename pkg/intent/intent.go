package intent

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

// Field 预约意图字段
type Field string

const (
	FieldDate     Field = "date"
	FieldDuration Field = "duration"
	FieldName     Field = "name"
	FieldEmail    Field = "email"
	FieldTimeZone Field = "timezone"
)

// AllFields 所有字段（固定顺序）
var AllFields = []Field{FieldDate, FieldDuration, FieldName, FieldEmail, FieldTimeZone}

// ParseFields 解析字段名列表，未知字段返回错误
func ParseFields(names []string) ([]Field, error) {
	fields := make([]Field, 0, len(names))
	for _, name := range names {
		f := Field(strings.ToLower(strings.TrimSpace(name)))
		switch f {
		case FieldDate, FieldDuration, FieldName, FieldEmail, FieldTimeZone:
			fields = append(fields, f)
		default:
			return nil, fmt.Errorf("unknown booking field %q", name)
		}
	}
	return fields, nil
}

// BookingIntent 通话中逐步累积的预约意图
// 零值字段表示尚未获取；每个字段只写一次
type BookingIntent struct {
	Date     time.Time `json:"date,omitempty"`
	Duration int       `json:"duration,omitempty"` // 分钟
	Name     string    `json:"name,omitempty"`
	Email    string    `json:"email,omitempty"`
	TimeZone string    `json:"timeZone,omitempty"`
}

// Has 字段是否已设置
func (b BookingIntent) Has(f Field) bool {
	switch f {
	case FieldDate:
		return !b.Date.IsZero()
	case FieldDuration:
		return b.Duration > 0
	case FieldName:
		return b.Name != ""
	case FieldEmail:
		return b.Email != ""
	case FieldTimeZone:
		return b.TimeZone != ""
	}
	return false
}

// Empty 是否没有任何字段
func (b BookingIntent) Empty() bool {
	for _, f := range AllFields {
		if b.Has(f) {
			return false
		}
	}
	return true
}

// Merge 合并部分意图，已设置的字段不会被覆盖（先写优先）
// 返回本次新设置的字段
func (b *BookingIntent) Merge(update BookingIntent) []Field {
	var set []Field
	if !b.Has(FieldDate) && update.Has(FieldDate) {
		b.Date = update.Date
		set = append(set, FieldDate)
	}
	if !b.Has(FieldDuration) && update.Has(FieldDuration) {
		b.Duration = update.Duration
		set = append(set, FieldDuration)
	}
	if !b.Has(FieldName) && update.Has(FieldName) {
		b.Name = update.Name
		set = append(set, FieldName)
	}
	if !b.Has(FieldEmail) && update.Has(FieldEmail) {
		b.Email = update.Email
		set = append(set, FieldEmail)
	}
	if !b.Has(FieldTimeZone) && update.Has(FieldTimeZone) {
		b.TimeZone = update.TimeZone
		set = append(set, FieldTimeZone)
	}
	return set
}

// MissingFields 返回未设置的字段
func (b BookingIntent) MissingFields(fields []Field) []Field {
	var missing []Field
	for _, f := range fields {
		if !b.Has(f) {
			missing = append(missing, f)
		}
	}
	return missing
}

// MarshalLogObject 实现 zapcore.ObjectMarshaler
func (b BookingIntent) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	if b.Has(FieldDate) {
		enc.AddTime("date", b.Date)
	}
	if b.Has(FieldDuration) {
		enc.AddInt("duration", b.Duration)
	}
	if b.Has(FieldName) {
		enc.AddString("name", b.Name)
	}
	if b.Has(FieldEmail) {
		enc.AddString("email", b.Email)
	}
	if b.Has(FieldTimeZone) {
		enc.AddString("timeZone", b.TimeZone)
	}
	return nil
}

// Predicate 预约完成条件：所有 Required 字段均已设置
type Predicate struct {
	Required []Field
}

// DefaultPredicate 默认只要求日期
var DefaultPredicate = Predicate{Required: []Field{FieldDate}}

// NewPredicate 根据字段名创建完成条件，空列表使用默认条件
func NewPredicate(names []string) (Predicate, error) {
	if len(names) == 0 {
		return DefaultPredicate, nil
	}
	fields, err := ParseFields(names)
	if err != nil {
		return Predicate{}, err
	}
	return Predicate{Required: fields}, nil
}

// Satisfied 意图是否满足完成条件；没有要求的字段时永不满足
func (p Predicate) Satisfied(b BookingIntent) bool {
	if len(p.Required) == 0 {
		return false
	}
	return len(b.MissingFields(p.Required)) == 0
}

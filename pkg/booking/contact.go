package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// ContactSink 将来电方姓名与邮箱推送到外部业务系统
type ContactSink struct {
	http *resty.Client
	url  string
}

// NewContactSink 创建联系人推送客户端
func NewContactSink(url string) *ContactSink {
	return &ContactSink{
		http: resty.New().SetTimeout(10 * time.Second),
		url:  url,
	}
}

type contactPayload struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Notify POST {name, email}
func (c *ContactSink) Notify(ctx context.Context, name, email string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(contactPayload{Name: name, Email: email}).
		Post(c.url)
	if err != nil {
		return fmt.Errorf("post contact: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("post contact: %s", resp.Status())
	}
	return nil
}

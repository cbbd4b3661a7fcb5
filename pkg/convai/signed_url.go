package convai

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const signedURLPath = "/v1/convai/conversation/get_signed_url"

// SignedURLClient 用 API Key 换取会话签名地址
type SignedURLClient struct {
	http    *resty.Client
	apiKey  string
	agentID string
}

// NewSignedURLClient 创建签名地址客户端
func NewSignedURLClient(baseURL, apiKey, agentID string) *SignedURLClient {
	return &SignedURLClient{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(10 * time.Second),
		apiKey:  apiKey,
		agentID: agentID,
	}
}

type signedURLResponse struct {
	SignedURL string `json:"signed_url"`
}

// GetSignedURL 获取签名地址
func (c *SignedURLClient) GetSignedURL(ctx context.Context) (string, error) {
	var out signedURLResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("xi-api-key", c.apiKey).
		SetQueryParam("agent_id", c.agentID).
		SetResult(&out).
		Get(signedURLPath)
	if err != nil {
		return "", fmt.Errorf("get signed url: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("get signed url: %s", resp.Status())
	}
	if out.SignedURL == "" {
		return "", fmt.Errorf("get signed url: empty signed_url in response")
	}
	return out.SignedURL, nil
}

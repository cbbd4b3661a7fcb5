package telephony

import (
	"fmt"

	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"
	"github.com/twilio/twilio-go/twiml"
)

// Client Twilio 外呼客户端
type Client struct {
	rest *twilio.RestClient
	from string
}

// NewClient 创建外呼客户端
func NewClient(accountSID, authToken, from string) *Client {
	return &Client{
		rest: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: accountSID,
			Password: authToken,
		}),
		from: from,
	}
}

// PlaceCall 发起外呼，接通后 Twilio 回调 twimlURL 获取 TwiML
// 开启应答机检测，回调会带上 AnsweredBy
func (c *Client) PlaceCall(to, twimlURL string) (string, error) {
	params := &api.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(c.from)
	params.SetUrl(twimlURL)
	params.SetMachineDetection("Enable")
	params.SetMachineDetectionTimeout(5)

	resp, err := c.rest.Api.CreateCall(params)
	if err != nil {
		return "", fmt.Errorf("create call: %w", err)
	}
	if resp.Sid == nil {
		return "", fmt.Errorf("create call: response has no sid")
	}
	return *resp.Sid, nil
}

// StreamParameter 流自定义参数
type StreamParameter struct {
	Name  string
	Value string
}

// ConnectStream 生成将通话接入媒体流的 TwiML
func ConnectStream(streamURL string, params []StreamParameter) (string, error) {
	inner := make([]twiml.Element, 0, len(params))
	for _, p := range params {
		inner = append(inner, &twiml.VoiceParameter{Name: p.Name, Value: p.Value})
	}
	stream := &twiml.VoiceStream{
		Url:           streamURL,
		InnerElements: inner,
	}
	connect := &twiml.VoiceConnect{
		InnerElements: []twiml.Element{stream},
	}
	return twiml.Voice([]twiml.Element{connect})
}

// SayAndHangup 播报一段话后挂断
func SayAndHangup(message string) (string, error) {
	return twiml.Voice([]twiml.Element{
		&twiml.VoiceSay{Message: message},
		&twiml.VoiceHangup{},
	})
}

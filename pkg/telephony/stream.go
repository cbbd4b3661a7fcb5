package telephony

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Event 媒体流入站事件（封闭集合）
type Event interface {
	streamEvent()
}

// Connected 连接建立（Twilio 在 start 之前发送）
type Connected struct {
	Protocol string
	Version  string
}

// Start 流开始
type Start struct {
	StreamSid  string
	CallSid    string
	AccountSid string
	Parameters map[string]string
}

// Media 一帧来电方音频（base64，原样转发）
type Media struct {
	StreamSid string
	Track     string
	Chunk     string
	Timestamp string
	Payload   string
}

// Stop 流结束
type Stop struct {
	StreamSid string
	CallSid   string
}

// Mark 播放标记回执
type Mark struct {
	StreamSid string
	Name      string
}

// Unknown 未识别的事件
type Unknown struct {
	Event string
	Raw   json.RawMessage
}

func (Connected) streamEvent() {}
func (Start) streamEvent()     {}
func (Media) streamEvent()     {}
func (Stop) streamEvent()      {}
func (Mark) streamEvent()      {}
func (Unknown) streamEvent()   {}

// ErrMissingEvent 消息缺少 event 字段
var ErrMissingEvent = errors.New("stream message has no event")

type parameter struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type inboundEnvelope struct {
	Event      string      `json:"event"`
	StreamSid  string      `json:"streamSid"`
	CallSid    string      `json:"callSid"`
	Parameters []parameter `json:"parameters"`
	Protocol   string      `json:"protocol"`
	Version    string      `json:"version"`
	Start      *struct {
		StreamSid        string            `json:"streamSid"`
		CallSid          string            `json:"callSid"`
		AccountSid       string            `json:"accountSid"`
		CustomParameters map[string]string `json:"customParameters"`
	} `json:"start"`
	Media *struct {
		Track     string `json:"track"`
		Chunk     string `json:"chunk"`
		Timestamp string `json:"timestamp"`
		Payload   string `json:"payload"`
	} `json:"media"`
	Stop *struct {
		CallSid string `json:"callSid"`
	} `json:"stop"`
	Mark *struct {
		Name string `json:"name"`
	} `json:"mark"`
}

// DecodeInbound 解析入站消息
// start 同时兼容扁平格式（streamSid/callSid/parameters[]）与 Twilio 嵌套格式（start.customParameters）
func DecodeInbound(data []byte) (Event, error) {
	var env inboundEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode stream message: %w", err)
	}

	switch env.Event {
	case "":
		return nil, ErrMissingEvent
	case "connected":
		return Connected{Protocol: env.Protocol, Version: env.Version}, nil
	case "start":
		return decodeStart(env), nil
	case "media":
		m := Media{StreamSid: env.StreamSid}
		if env.Media != nil {
			m.Track = env.Media.Track
			m.Chunk = env.Media.Chunk
			m.Timestamp = env.Media.Timestamp
			m.Payload = env.Media.Payload
		}
		return m, nil
	case "stop":
		s := Stop{StreamSid: env.StreamSid, CallSid: env.CallSid}
		if s.CallSid == "" && env.Stop != nil {
			s.CallSid = env.Stop.CallSid
		}
		return s, nil
	case "mark":
		m := Mark{StreamSid: env.StreamSid}
		if env.Mark != nil {
			m.Name = env.Mark.Name
		}
		return m, nil
	default:
		return Unknown{Event: env.Event, Raw: append(json.RawMessage(nil), data...)}, nil
	}
}

func decodeStart(env inboundEnvelope) Start {
	s := Start{
		StreamSid:  env.StreamSid,
		CallSid:    env.CallSid,
		Parameters: make(map[string]string),
	}
	if env.Start != nil {
		if s.StreamSid == "" {
			s.StreamSid = env.Start.StreamSid
		}
		if s.CallSid == "" {
			s.CallSid = env.Start.CallSid
		}
		s.AccountSid = env.Start.AccountSid
		for k, v := range env.Start.CustomParameters {
			if k != "" && v != "" {
				s.Parameters[k] = v
			}
		}
	}
	// 名称或值为空的参数跳过
	for _, p := range env.Parameters {
		if p.Name != "" && p.Value != "" {
			s.Parameters[p.Name] = p.Value
		}
	}
	return s
}

// Frame 出站帧，按 streamSid 寻址
type Frame struct {
	Event     string        `json:"event"`
	StreamSid string        `json:"streamSid"`
	Media     *MediaPayload `json:"media,omitempty"`
}

// MediaPayload 出站音频负载
type MediaPayload struct {
	Payload string `json:"payload"`
}

// MediaFrame 播放给来电方的音频帧
func MediaFrame(streamSid, payload string) Frame {
	return Frame{Event: "media", StreamSid: streamSid, Media: &MediaPayload{Payload: payload}}
}

// ClearFrame 清空来电方播放缓冲（打断）
func ClearFrame(streamSid string) Frame {
	return Frame{Event: "clear", StreamSid: streamSid}
}

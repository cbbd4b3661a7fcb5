package convai

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Event 语音服务下行事件（封闭集合）
type Event interface {
	convaiEvent()
}

// InitiationMetadata 会话建立元数据
type InitiationMetadata struct {
	ConversationID         string
	AgentOutputAudioFormat string
	UserInputAudioFormat   string
}

// Audio 智能体音频片段（base64）
type Audio struct {
	Chunk   string
	EventID int
}

// Interruption 用户打断
type Interruption struct {
	EventID int
}

// Ping 心跳，需回复相同 event_id 的 pong
type Ping struct {
	EventID int
	PingMs  int
}

// AgentResponse 智能体回复文本
type AgentResponse struct {
	Text string
}

// UserTranscript 用户语音转写
type UserTranscript struct {
	Text string
}

// Unknown 未识别的消息类型
type Unknown struct {
	Type string
	Raw  json.RawMessage
}

func (InitiationMetadata) convaiEvent() {}
func (Audio) convaiEvent()              {}
func (Interruption) convaiEvent()       {}
func (Ping) convaiEvent()               {}
func (AgentResponse) convaiEvent()      {}
func (UserTranscript) convaiEvent()     {}
func (Unknown) convaiEvent()            {}

// ErrMissingType 消息缺少 type 字段
var ErrMissingType = errors.New("convai message has no type")

type envelope struct {
	Type string `json:"type"`

	InitiationMetadata *struct {
		ConversationID         string `json:"conversation_id"`
		AgentOutputAudioFormat string `json:"agent_output_audio_format"`
		UserInputAudioFormat   string `json:"user_input_audio_format"`
	} `json:"conversation_initiation_metadata_event"`

	AudioEvent *struct {
		AudioBase64 string `json:"audio_base_64"`
		EventID     int    `json:"event_id"`
	} `json:"audio_event"`
	// 旧版格式 audio.chunk
	Audio *struct {
		Chunk string `json:"chunk"`
	} `json:"audio"`

	InterruptionEvent *struct {
		EventID int `json:"event_id"`
	} `json:"interruption_event"`

	PingEvent *struct {
		EventID int `json:"event_id"`
		PingMs  int `json:"ping_ms"`
	} `json:"ping_event"`

	AgentResponseEvent *struct {
		AgentResponse string `json:"agent_response"`
	} `json:"agent_response_event"`

	UserTranscriptionEvent *struct {
		UserTranscript string `json:"user_transcript"`
	} `json:"user_transcription_event"`
}

// DecodeEvent 解析下行消息
func DecodeEvent(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode convai message: %w", err)
	}

	switch env.Type {
	case "":
		return nil, ErrMissingType
	case "conversation_initiation_metadata":
		var m InitiationMetadata
		if env.InitiationMetadata != nil {
			m.ConversationID = env.InitiationMetadata.ConversationID
			m.AgentOutputAudioFormat = env.InitiationMetadata.AgentOutputAudioFormat
			m.UserInputAudioFormat = env.InitiationMetadata.UserInputAudioFormat
		}
		return m, nil
	case "audio":
		var a Audio
		switch {
		case env.AudioEvent != nil && env.AudioEvent.AudioBase64 != "":
			a.Chunk = env.AudioEvent.AudioBase64
			a.EventID = env.AudioEvent.EventID
		case env.Audio != nil && env.Audio.Chunk != "":
			a.Chunk = env.Audio.Chunk
		default:
			return nil, fmt.Errorf("audio message has no payload")
		}
		return a, nil
	case "interruption":
		var i Interruption
		if env.InterruptionEvent != nil {
			i.EventID = env.InterruptionEvent.EventID
		}
		return i, nil
	case "ping":
		if env.PingEvent == nil {
			return nil, fmt.Errorf("ping message has no ping_event")
		}
		return Ping{EventID: env.PingEvent.EventID, PingMs: env.PingEvent.PingMs}, nil
	case "agent_response":
		var r AgentResponse
		if env.AgentResponseEvent != nil {
			r.Text = env.AgentResponseEvent.AgentResponse
		}
		return r, nil
	case "user_transcript":
		var u UserTranscript
		if env.UserTranscriptionEvent != nil {
			u.Text = env.UserTranscriptionEvent.UserTranscript
		}
		return u, nil
	default:
		return Unknown{Type: env.Type, Raw: append(json.RawMessage(nil), data...)}, nil
	}
}

// InitiationClientData 会话配置覆盖（连接建立后第一条消息）
type InitiationClientData struct {
	Type                       string                     `json:"type"`
	ConversationConfigOverride ConversationConfigOverride `json:"conversation_config_override"`
}

type ConversationConfigOverride struct {
	Agent AgentOverride `json:"agent"`
}

type AgentOverride struct {
	Prompt       PromptOverride `json:"prompt"`
	FirstMessage string         `json:"first_message"`
}

type PromptOverride struct {
	Prompt string `json:"prompt"`
}

// NewInitiationClientData 创建会话配置消息
func NewInitiationClientData(prompt, firstMessage string) InitiationClientData {
	return InitiationClientData{
		Type: "conversation_initiation_client_data",
		ConversationConfigOverride: ConversationConfigOverride{
			Agent: AgentOverride{
				Prompt:       PromptOverride{Prompt: prompt},
				FirstMessage: firstMessage,
			},
		},
	}
}

// UserAudioChunk 上行用户音频
type UserAudioChunk struct {
	UserAudioChunk string `json:"user_audio_chunk"`
}

// Pong 心跳回复
type Pong struct {
	Type    string `json:"type"`
	EventID int    `json:"event_id"`
}

// NewPong 创建心跳回复
func NewPong(eventID int) Pong {
	return Pong{Type: "pong", EventID: eventID}
}

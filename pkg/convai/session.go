package convai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/logiccrew/OutCalling/pkg/errhandler"
	"go.uber.org/zap"
)

const (
	writeTimeout    = 5 * time.Second
	eventBufferSize = 64

	// ParamPrompt / ParamFirstMessage 媒体流自定义参数名
	ParamPrompt       = "prompt"
	ParamFirstMessage = "first_message"
)

// ErrSessionClosed 会话已关闭
var ErrSessionClosed = errors.New("convai session closed")

// DialerConfig 拨号配置
type DialerConfig struct {
	BaseURL             string
	APIKey              string
	AgentID             string
	DefaultPrompt       string
	DefaultFirstMessage string
	HandshakeTimeout    time.Duration
}

// Dialer 建立语音服务会话
type Dialer struct {
	signer *SignedURLClient
	ws     *websocket.Dialer
	cfg    DialerConfig
	logger *zap.Logger
}

// NewDialer 创建拨号器
func NewDialer(cfg DialerConfig, logger *zap.Logger) *Dialer {
	timeout := cfg.HandshakeTimeout
	if timeout <= 0 {
		timeout = websocket.DefaultDialer.HandshakeTimeout
	}
	return &Dialer{
		signer: NewSignedURLClient(cfg.BaseURL, cfg.APIKey, cfg.AgentID),
		ws: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: timeout,
		},
		cfg:    cfg,
		logger: logger,
	}
}

// Dial 换取签名地址，建立连接并发送会话配置
// params 中缺少 prompt / first_message 时使用默认值
func (d *Dialer) Dial(ctx context.Context, params map[string]string) (*Session, error) {
	signedURL, err := d.signer.GetSignedURL(ctx)
	if err != nil {
		return nil, errhandler.New(errhandler.KindHandshake, "convai", "credential exchange", err)
	}

	conn, _, err := d.ws.DialContext(ctx, signedURL, nil)
	if err != nil {
		return nil, errhandler.New(errhandler.KindHandshake, "convai", "open session", err)
	}

	s := newSession(conn, d.logger)
	prompt := valueOr(params[ParamPrompt], d.cfg.DefaultPrompt)
	firstMessage := valueOr(params[ParamFirstMessage], d.cfg.DefaultFirstMessage)
	if err := s.writeJSON(NewInitiationClientData(prompt, firstMessage)); err != nil {
		_ = s.Close()
		return nil, errhandler.New(errhandler.KindHandshake, "convai", "send initiation config", err)
	}
	d.logger.Info("convai session opened", zap.Bool("customPrompt", params[ParamPrompt] != ""))

	go s.readLoop()
	return s, nil
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// Session 一个语音服务会话
type Session struct {
	conn   *websocket.Conn
	logger *zap.Logger

	writeMu sync.Mutex
	events  chan Event

	closeOnce sync.Once
	done      chan struct{}
}

func newSession(conn *websocket.Conn, logger *zap.Logger) *Session {
	return &Session{
		conn:   conn,
		logger: logger,
		events: make(chan Event, eventBufferSize),
		done:   make(chan struct{}),
	}
}

// Events 下行事件，会话结束后关闭
func (s *Session) Events() <-chan Event {
	return s.events
}

// Done 会话关闭信号
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// SendAudio 发送来电方音频（base64 原样透传）
func (s *Session) SendAudio(payload string) error {
	return s.writeJSON(UserAudioChunk{UserAudioChunk: payload})
}

// SendPong 回复心跳
func (s *Session) SendPong(eventID int) error {
	return s.writeJSON(NewPong(eventID))
}

// Close 关闭会话，可重复调用
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.writeMu.Lock()
		_ = s.conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}

func (s *Session) writeJSON(v any) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write convai message: %w", err)
	}
	return nil
}

// readLoop 读取下行消息，解析失败的消息记录后丢弃
func (s *Session) readLoop() {
	defer close(s.events)
	defer s.Close()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
				s.logger.Debug("convai session closed locally")
			default:
				errhandler.Log(s.logger, errhandler.New(errhandler.KindTransport, "convai", "read", err))
			}
			return
		}

		ev, err := DecodeEvent(data)
		if err != nil {
			errhandler.Log(s.logger, errhandler.New(errhandler.KindParse, "convai", "decode", err))
			continue
		}

		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
}

package errhandler

import (
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Kind 错误类别，决定日志级别与处理方式
type Kind int

const (
	// KindSetup 启动配置错误（进程不启动）
	KindSetup Kind = iota
	// KindHandshake 语音服务握手失败（桥接继续，无语音会话）
	KindHandshake
	// KindTransport 连接读写失败（桥接拆除）
	KindTransport
	// KindParse 消息解析失败（丢弃该消息）
	KindParse
	// KindCollaborator 外部协作方（日历、联系人接口）失败，不重试
	KindCollaborator
)

func (k Kind) String() string {
	switch k {
	case KindSetup:
		return "setup"
	case KindHandshake:
		return "handshake"
	case KindTransport:
		return "transport"
	case KindParse:
		return "parse"
	case KindCollaborator:
		return "collaborator"
	default:
		return "unknown"
	}
}

// Error 统一错误结构
type Error struct {
	Kind    Kind
	Service string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Service, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Service, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New 创建分类错误
func New(kind Kind, service, message string, err error) *Error {
	return &Error{Kind: kind, Service: service, Message: message, Err: err}
}

// KindOf 获取错误类别，非 *Error 一律视为 transport
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransport
}

// IsNormalClose 判断是否是正常的连接关闭
func IsNormalClose(err error) bool {
	if err == nil {
		return false
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}

// Log 按类别记录错误
// 正常关闭记为 debug，解析错误记为 warn，其余记为 error
func Log(logger *zap.Logger, err error, fields ...zap.Field) {
	if err == nil || logger == nil {
		return
	}
	kind := KindOf(err)
	fields = append(fields, zap.String("kind", kind.String()), zap.Error(err))

	switch {
	case IsNormalClose(err):
		logger.Debug("connection closed", fields...)
	case kind == KindParse:
		logger.Warn("dropping malformed message", fields...)
	default:
		logger.Error("operation failed", fields...)
	}
}

package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// WriterBufferSize 出站帧缓冲区大小
	WriterBufferSize = 256
)

// ErrWriterClosed 写入器已关闭
var ErrWriterClosed = errors.New("frame writer closed")

// Writer 媒体流出站帧写入器，异步写入，保持帧顺序
type Writer struct {
	conn   *websocket.Conn
	logger *zap.Logger
	frames chan []byte
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
	mu     sync.RWMutex
	closed bool
}

// NewWriter 创建写入器并启动写入循环
func NewWriter(conn *websocket.Conn, logger *zap.Logger) *Writer {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Writer{
		conn:   conn,
		logger: logger,
		frames: make(chan []byte, WriterBufferSize),
		ctx:    ctx,
		cancel: cancel,
	}
	w.wg.Add(1)
	go w.writeLoop()
	return w
}

// WriteFrame 排队一帧（非阻塞，缓冲区满时丢弃并告警）
func (w *Writer) WriteFrame(frame Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrWriterClosed
	}

	select {
	case <-w.ctx.Done():
		return ErrWriterClosed
	case w.frames <- data:
		return nil
	default:
		w.logger.Warn("出站帧缓冲区已满，丢弃数据", zap.String("event", frame.Event))
		return nil
	}
}

// Close 停止接收新帧，写完已排队的帧后退出
func (w *Writer) Close() error {
	w.once.Do(func() {
		w.mu.Lock()
		w.closed = true
		close(w.frames)
		w.mu.Unlock()
		w.wg.Wait()
		w.cancel()
	})
	return nil
}

// writeLoop 写入循环
func (w *Writer) writeLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case msg, ok := <-w.frames:
			if !ok {
				return
			}
			if err := w.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
					w.logger.Debug("媒体流连接已关闭，停止写入", zap.Error(err))
				} else {
					w.logger.Error("写入媒体流消息失败", zap.Error(err))
				}
				// 写失败后不再写入，丢弃剩余帧
				w.cancel()
				return
			}
		}
	}
}

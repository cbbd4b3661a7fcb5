package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/logiccrew/OutCalling/pkg/errhandler"
	"github.com/logiccrew/OutCalling/pkg/telephony"
	"go.uber.org/zap"
)

var mediaStreamUpgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // 媒体流鉴权交给网络层
	},
}

// HandleMediaStream 接受一条媒体流连接，每条连接一个独立的桥接
func (h *Handlers) HandleMediaStream(c *gin.Context) {
	conn, err := mediaStreamUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("media stream upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	writer := telephony.NewWriter(conn, h.logger)
	b := h.newBridge(writer)
	log := h.logger.With(zap.String("bridgeId", b.ID()))
	log.Info("media stream connected", zap.String("remote", conn.RemoteAddr().String()))

	h.track(b.ID(), activeStream{bridge: b, conn: conn})
	defer func() {
		b.Close()
		b.Wait()
		_ = writer.Close()
		h.untrack(b.ID())
		log.Info("media stream disconnected")
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			errhandler.Log(log, errhandler.New(errhandler.KindTransport, "telephony", "read", err))
			return
		}

		ev, err := telephony.DecodeInbound(data)
		if err != nil {
			errhandler.Log(log, errhandler.New(errhandler.KindParse, "telephony", "decode", err))
			continue
		}
		b.HandleInbound(ev)
	}
}

func (h *Handlers) track(id string, s activeStream) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.streams[id] = s
}

func (h *Handlers) untrack(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.streams, id)
}

// ActiveCount 当前活跃的媒体流连接数
func (h *Handlers) ActiveCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.streams)
}

// CloseAll 关闭所有媒体流连接（优雅退出时调用），并在 ctx 到期前等待已触发的预约完成
func (h *Handlers) CloseAll(ctx context.Context) {
	h.mu.Lock()
	streams := make([]activeStream, 0, len(h.streams))
	for _, s := range h.streams {
		streams = append(streams, s)
	}
	h.mu.Unlock()

	for _, s := range streams {
		s.bridge.Close()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), time.Now().Add(time.Second))
		_ = s.conn.Close()
	}
	if len(streams) == 0 {
		return
	}
	h.logger.Info("closed active media streams", zap.Int("count", len(streams)))

	done := make(chan struct{})
	go func() {
		for _, s := range streams {
			s.bridge.Wait()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		h.logger.Warn("gave up waiting for media streams to drain", zap.Error(ctx.Err()))
	}
}

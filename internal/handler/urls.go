package handlers

import (
	"fmt"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/logiccrew/OutCalling/pkg/bridge"
	"github.com/logiccrew/OutCalling/pkg/config"
	"github.com/logiccrew/OutCalling/pkg/events"
	"github.com/logiccrew/OutCalling/pkg/metrics"
	"github.com/logiccrew/OutCalling/pkg/middleware"
	"go.uber.org/zap"
)

// CallPlacer 发起外呼
type CallPlacer interface {
	PlaceCall(to, twimlURL string) (string, error)
}

// BridgeFactory 为每条媒体流连接创建桥接
type BridgeFactory func(out bridge.FrameWriter) *bridge.Bridge

// Deps 处理器依赖
type Deps struct {
	Config    *config.Config
	Calls     CallPlacer
	NewBridge BridgeFactory
	Metrics   *metrics.Metrics
	Bus       *events.EventBus
	Logger    *zap.Logger
}

type activeStream struct {
	bridge *bridge.Bridge
	conn   *websocket.Conn
}

type Handlers struct {
	cfg       *config.Config
	calls     CallPlacer
	newBridge BridgeFactory
	metrics   *metrics.Metrics
	bus       *events.EventBus
	logger    *zap.Logger
	callLimit gin.HandlerFunc

	mu      sync.Mutex
	streams map[string]activeStream
}

// NewHandlers 创建处理器，限流配置无效时返回错误
func NewHandlers(deps Deps) (*Handlers, error) {
	limit, err := middleware.RateLimitMiddleware(deps.Config.OutboundCallRate)
	if err != nil {
		return nil, fmt.Errorf("outbound call rate limit: %w", err)
	}
	log := deps.Logger
	if log == nil {
		log = zap.L()
	}
	return &Handlers{
		cfg:       deps.Config,
		calls:     deps.Calls,
		newBridge: deps.NewBridge,
		metrics:   deps.Metrics,
		bus:       deps.Bus,
		logger:    log,
		callLimit: limit,
		streams:   make(map[string]activeStream),
	}, nil
}

func (h *Handlers) Register(engine *gin.Engine) {
	engine.GET("/", h.HealthCheck)

	// Outbound call placement and Twilio callback
	engine.POST("/outbound-call", h.callLimit, h.OutboundCall)
	engine.Any("/outbound-call-twiml", h.OutboundCallTwiML)

	// Media stream websocket
	engine.GET("/outbound-media-stream", h.HandleMediaStream)

	if h.metrics != nil {
		engine.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	}
}

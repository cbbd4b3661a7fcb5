package bridge

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/logiccrew/OutCalling/pkg/convai"
	"github.com/logiccrew/OutCalling/pkg/errhandler"
	"github.com/logiccrew/OutCalling/pkg/events"
	"github.com/logiccrew/OutCalling/pkg/intent"
	"github.com/logiccrew/OutCalling/pkg/telephony"
	"go.uber.org/zap"
)

// FrameWriter 向来电方连接写出站帧
type FrameWriter interface {
	WriteFrame(frame telephony.Frame) error
}

// SpeechSession 语音服务会话
type SpeechSession interface {
	SendAudio(payload string) error
	SendPong(eventID int) error
	Events() <-chan convai.Event
	Close() error
}

// DialFunc 建立语音服务会话（握手可能耗时，必须尊重 ctx）
type DialFunc func(ctx context.Context, params map[string]string) (SpeechSession, error)

// Booker 预约触发目标
type Booker interface {
	Book(ctx context.Context, callSid string, in intent.BookingIntent) error
}

// Options 创建桥接的依赖
type Options struct {
	Out       FrameWriter
	Dial      DialFunc
	Booker    Booker
	Extractor *intent.Extractor
	Predicate intent.Predicate
	Bus       *events.EventBus
	Logger    *zap.Logger
}

// Bridge 一条媒体流连接对应一个桥接
// 来电方事件与语音服务事件都在 mu 下串行处理
type Bridge struct {
	id        string
	out       FrameWriter
	dial      DialFunc
	booker    Booker
	extractor *intent.Extractor
	predicate intent.Predicate
	bus       *events.EventBus
	logger    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	state      SessionState
	session    SpeechSession
	generation int
	closeOnce  sync.Once
}

// New 创建桥接（Idle 状态）
func New(opts Options) *Bridge {
	id := uuid.NewString()
	log := opts.Logger
	if log == nil {
		log = zap.L()
	}
	extractor := opts.Extractor
	if extractor == nil {
		extractor = intent.NewExtractor()
	}
	predicate := opts.Predicate
	if len(predicate.Required) == 0 {
		predicate = intent.DefaultPredicate
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		id:        id,
		out:       opts.Out,
		dial:      opts.Dial,
		booker:    opts.Booker,
		extractor: extractor,
		predicate: predicate,
		bus:       opts.Bus,
		logger:    log.With(zap.String("bridgeId", id)),
		ctx:       ctx,
		cancel:    cancel,
	}
	b.publish(events.BridgeOpened, nil)
	return b
}

// ID 桥接标识
func (b *Bridge) ID() string {
	return b.id
}

// State 返回当前状态快照
func (b *Bridge) State() SessionState {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.state
	s.CustomParameters = copyParams(b.state.CustomParameters)
	s.AdapterOpen = b.session != nil
	return s
}

// HandleInbound 处理来电方连接的一条事件
func (b *Bridge) HandleInbound(ev telephony.Event) {
	b.mu.Lock()
	if b.state.Phase == PhaseClosed {
		b.mu.Unlock()
		b.logger.Debug("ignoring stream event after close")
		return
	}

	switch e := ev.(type) {
	case telephony.Connected:
		b.mu.Unlock()
		b.logger.Debug("media stream connected", zap.String("protocol", e.Protocol))

	case telephony.Start:
		if b.state.Phase != PhaseIdle {
			b.mu.Unlock()
			b.logger.Warn("duplicate stream start ignored", zap.String("streamSid", e.StreamSid))
			return
		}
		b.state.Phase = PhaseActive
		b.state.StreamSid = e.StreamSid
		b.state.CallSid = e.CallSid
		b.state.CustomParameters = copyParams(e.Parameters)
		b.generation++
		gen := b.generation
		params := copyParams(e.Parameters)
		b.wg.Add(1)
		b.mu.Unlock()

		b.logger.Info("stream started", zap.String("streamSid", e.StreamSid), zap.String("callSid", e.CallSid))
		b.publish(events.StreamStarted, map[string]interface{}{"streamSid": e.StreamSid, "callSid": e.CallSid})
		go b.connect(gen, params)

	case telephony.Media:
		session := b.session
		active := b.state.Phase == PhaseActive
		b.mu.Unlock()
		// 语音会话未就绪时直接丢弃，不缓冲
		if !active || session == nil {
			return
		}
		if err := session.SendAudio(e.Payload); err != nil {
			errhandler.Log(b.logger, errhandler.New(errhandler.KindTransport, "convai", "send audio", err))
		}

	case telephony.Stop:
		b.closeLocked("stream stopped")
		b.mu.Unlock()
		b.publish(events.StreamStopped, map[string]interface{}{"streamSid": e.StreamSid})

	case telephony.Mark:
		b.mu.Unlock()
		b.logger.Debug("mark received", zap.String("name", e.Name))

	case telephony.Unknown:
		b.mu.Unlock()
		b.logger.Info("unhandled stream event", zap.String("event", e.Event))

	default:
		b.mu.Unlock()
		b.logger.Warn("unsupported stream event type")
	}
}

// Close 来电方连接关闭时调用，可重复调用
func (b *Bridge) Close() {
	b.mu.Lock()
	b.closeLocked("connection closed")
	b.mu.Unlock()

	b.closeOnce.Do(func() {
		// 取消进行中的握手
		b.cancel()
		b.publish(events.BridgeClosed, nil)
	})
}

// Wait 等待握手、事件泵与已触发的预约全部退出
func (b *Bridge) Wait() {
	b.wg.Wait()
}

// closeLocked 进入 Closed 状态并关闭语音会话，调用方持有 mu
func (b *Bridge) closeLocked(reason string) {
	if b.state.Phase == PhaseClosed {
		return
	}
	b.state.Phase = PhaseClosed
	b.state.StreamSid = ""
	b.state.CallSid = ""
	if b.session != nil {
		if err := b.session.Close(); err != nil {
			b.logger.Debug("close convai session", zap.Error(err))
		}
		b.session = nil
	}
	b.logger.Info("bridge closed", zap.String("reason", reason))
}

// connect 异步握手，完成时若桥接已关闭或已过期则立即关闭会话
func (b *Bridge) connect(gen int, params map[string]string) {
	defer b.wg.Done()
	if b.dial == nil {
		b.logger.Error("no convai dialer configured")
		return
	}

	session, err := b.dial(b.ctx, params)
	if err != nil {
		errhandler.Log(b.logger, err)
		b.publish(events.AdapterFailed, map[string]interface{}{"error": err.Error()})
		return
	}

	b.mu.Lock()
	if b.state.Phase != PhaseActive || gen != b.generation {
		b.mu.Unlock()
		b.logger.Info("discarding convai session opened after close")
		_ = session.Close()
		return
	}
	b.session = session
	b.wg.Add(1)
	b.mu.Unlock()

	b.logger.Info("convai session ready")
	b.publish(events.AdapterConnected, nil)
	go b.pump(session)
}

// pump 把语音服务事件送入桥接，事件通道关闭即会话结束
func (b *Bridge) pump(session SpeechSession) {
	defer b.wg.Done()
	for ev := range session.Events() {
		b.handleSpeech(session, ev)
	}

	b.mu.Lock()
	if b.session == session {
		b.session = nil
		b.logger.Info("convai session ended by remote")
	}
	b.mu.Unlock()
}

func (b *Bridge) handleSpeech(session SpeechSession, ev convai.Event) {
	b.mu.Lock()
	if b.state.Phase != PhaseActive || b.session != session {
		b.mu.Unlock()
		return
	}

	switch e := ev.(type) {
	case convai.InitiationMetadata:
		b.mu.Unlock()
		b.logger.Info("convai conversation initiated", zap.String("conversationId", e.ConversationID))

	case convai.Audio:
		// 写入器非阻塞，持锁写出保证 stop 之后不再有帧
		if b.state.StreamSid == "" {
			b.mu.Unlock()
			b.logger.Warn("dropping agent audio, stream id not set")
			return
		}
		b.writeFrame(telephony.MediaFrame(b.state.StreamSid, e.Chunk))
		b.mu.Unlock()

	case convai.Interruption:
		if b.state.StreamSid != "" {
			b.writeFrame(telephony.ClearFrame(b.state.StreamSid))
		}
		b.mu.Unlock()

	case convai.Ping:
		b.mu.Unlock()
		if err := session.SendPong(e.EventID); err != nil {
			errhandler.Log(b.logger, errhandler.New(errhandler.KindTransport, "convai", "send pong", err))
		}

	case convai.AgentResponse:
		b.mu.Unlock()
		b.logger.Info("agent response", zap.String("text", e.Text))

	case convai.UserTranscript:
		b.onTranscript(e.Text)

	case convai.Unknown:
		b.mu.Unlock()
		b.logger.Debug("unhandled convai message", zap.String("type", e.Type))

	default:
		b.mu.Unlock()
		b.logger.Warn("unsupported convai event type")
	}
}

// onTranscript 提取并合并意图，满足条件时触发一次预约；调用时持有 mu，返回前释放
func (b *Bridge) onTranscript(text string) {
	lowered := strings.ToLower(text)
	update := b.extractor.Extract(lowered)
	set := b.state.Intent.Merge(update)

	trigger := !b.state.BookingTriggered && b.predicate.Satisfied(b.state.Intent)
	if trigger {
		b.state.BookingTriggered = true
	}
	snapshot := b.state.Intent
	callSid := b.state.CallSid
	b.mu.Unlock()

	b.logger.Info("user transcript", zap.String("text", lowered))
	if len(set) > 0 {
		b.logger.Info("booking intent updated", zap.Any("fields", set), zap.Object("intent", snapshot))
	}
	if trigger {
		b.logger.Info("booking intent complete, triggering booking", zap.Object("intent", snapshot))
		b.wg.Add(1)
		go b.book(callSid, snapshot)
	}
}

// book 异步预约，失败只记录不重试；Wait 会等待其完成
func (b *Bridge) book(callSid string, in intent.BookingIntent) {
	defer b.wg.Done()
	if b.booker == nil {
		b.logger.Warn("no booker configured, booking skipped")
		return
	}
	// 通话结束不影响已触发的预约
	ctx := context.WithoutCancel(b.ctx)
	if err := b.booker.Book(ctx, callSid, in); err != nil {
		errhandler.Log(b.logger, errhandler.New(errhandler.KindCollaborator, "booking", "create booking", err))
		b.publish(events.BookingFailed, map[string]interface{}{"callSid": callSid, "error": err.Error()})
		return
	}
	b.logger.Info("booking created")
	b.publish(events.BookingSucceeded, map[string]interface{}{"callSid": callSid})
}

func (b *Bridge) writeFrame(frame telephony.Frame) {
	if b.out == nil {
		return
	}
	if err := b.out.WriteFrame(frame); err != nil {
		errhandler.Log(b.logger, errhandler.New(errhandler.KindTransport, "telephony", "write "+frame.Event, err))
	}
}

func (b *Bridge) publish(eventType string, data map[string]interface{}) {
	if b.bus == nil {
		return
	}
	b.bus.Emit(eventType, b.id, data)
}

// ConvaiDialer 将 convai.Dialer 适配为 DialFunc
func ConvaiDialer(d *convai.Dialer) DialFunc {
	return func(ctx context.Context, params map[string]string) (SpeechSession, error) {
		s, err := d.Dial(ctx, params)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

package bridge

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/logiccrew/OutCalling/pkg/convai"
	"github.com/logiccrew/OutCalling/pkg/events"
	"github.com/logiccrew/OutCalling/pkg/intent"
	"github.com/logiccrew/OutCalling/pkg/telephony"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type fakeSession struct {
	mu        sync.Mutex
	audio     []string
	pongs     []int
	events    chan convai.Event
	closes    atomic.Int32
	closeOnce sync.Once
}

func newFakeSession() *fakeSession {
	return &fakeSession{events: make(chan convai.Event, 16)}
}

func (s *fakeSession) SendAudio(payload string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio = append(s.audio, payload)
	return nil
}

func (s *fakeSession) SendPong(eventID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pongs = append(s.pongs, eventID)
	return nil
}

func (s *fakeSession) Events() <-chan convai.Event { return s.events }

func (s *fakeSession) Close() error {
	s.closes.Add(1)
	s.closeOnce.Do(func() { close(s.events) })
	return nil
}

func (s *fakeSession) sentAudio() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.audio...)
}

func (s *fakeSession) sentPongs() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.pongs...)
}

type fakeWriter struct {
	mu     sync.Mutex
	frames []telephony.Frame
}

func (w *fakeWriter) WriteFrame(f telephony.Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.frames = append(w.frames, f)
	return nil
}

func (w *fakeWriter) written() []telephony.Frame {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]telephony.Frame(nil), w.frames...)
}

type fakeBooker struct {
	calls   atomic.Int32
	callSid atomic.Value
	booked  chan intent.BookingIntent
	err     error
}

func newFakeBooker() *fakeBooker {
	return &fakeBooker{booked: make(chan intent.BookingIntent, 4)}
}

func (f *fakeBooker) Book(_ context.Context, callSid string, in intent.BookingIntent) error {
	f.calls.Add(1)
	f.callSid.Store(callSid)
	f.booked <- in
	return f.err
}

type fixture struct {
	bridge  *Bridge
	session *fakeSession
	writer  *fakeWriter
	booker  *fakeBooker
	dials   atomic.Int32
	params  chan map[string]string
}

func newFixture(t *testing.T, predicate intent.Predicate) *fixture {
	t.Helper()
	f := &fixture{
		session: newFakeSession(),
		writer:  &fakeWriter{},
		booker:  newFakeBooker(),
		params:  make(chan map[string]string, 1),
	}
	f.bridge = New(Options{
		Out: f.writer,
		Dial: func(ctx context.Context, params map[string]string) (SpeechSession, error) {
			f.dials.Add(1)
			f.params <- params
			return f.session, nil
		},
		Booker:    f.booker,
		Predicate: predicate,
		Logger:    zap.NewNop(),
	})
	t.Cleanup(func() {
		f.bridge.Close()
		f.bridge.Wait()
	})
	return f
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	f.bridge.HandleInbound(telephony.Start{
		StreamSid:  "MZ1",
		CallSid:    "CA1",
		Parameters: map[string]string{"prompt": "sell phones"},
	})
	require.Eventually(t, func() bool { return f.bridge.State().AdapterOpen }, waitFor, tick)
}

func (f *fixture) transcript(text string) {
	f.session.events <- convai.UserTranscript{Text: text}
}

func TestBridge_MediaWhileIdle(t *testing.T) {
	f := newFixture(t, intent.DefaultPredicate)

	f.bridge.HandleInbound(telephony.Media{StreamSid: "MZ1", Payload: "AAEC"})

	state := f.bridge.State()
	assert.Equal(t, PhaseIdle, state.Phase)
	assert.False(t, state.AdapterOpen)
	assert.Zero(t, f.dials.Load())
	assert.Empty(t, f.session.sentAudio())
	assert.Empty(t, f.writer.written())
}

func TestBridge_StartCapturesState(t *testing.T) {
	f := newFixture(t, intent.DefaultPredicate)
	f.start(t)

	state := f.bridge.State()
	assert.Equal(t, PhaseActive, state.Phase)
	assert.Equal(t, "MZ1", state.StreamSid)
	assert.Equal(t, "CA1", state.CallSid)
	assert.Equal(t, map[string]string{"prompt": "sell phones"}, state.CustomParameters)
	assert.Equal(t, map[string]string{"prompt": "sell phones"}, <-f.params)

	// 重复 start 不会再次握手
	f.bridge.HandleInbound(telephony.Start{StreamSid: "MZ2", CallSid: "CA2"})
	assert.Equal(t, int32(1), f.dials.Load())
	assert.Equal(t, "MZ1", f.bridge.State().StreamSid)
}

func TestBridge_MediaForwarded(t *testing.T) {
	f := newFixture(t, intent.DefaultPredicate)
	f.start(t)

	f.bridge.HandleInbound(telephony.Media{StreamSid: "MZ1", Payload: "AAEC"})
	assert.Equal(t, []string{"AAEC"}, f.session.sentAudio())
}

func TestBridge_MediaBeforeAdapterDropped(t *testing.T) {
	session := newFakeSession()
	release := make(chan struct{})
	b := New(Options{
		Out: &fakeWriter{},
		Dial: func(ctx context.Context, _ map[string]string) (SpeechSession, error) {
			select {
			case <-release:
				return session, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
		Logger: zap.NewNop(),
	})
	defer func() {
		b.Close()
		b.Wait()
	}()

	b.HandleInbound(telephony.Start{StreamSid: "MZ1", CallSid: "CA1"})
	b.HandleInbound(telephony.Media{Payload: "early"})
	close(release)
	require.Eventually(t, func() bool { return b.State().AdapterOpen }, waitFor, tick)
	b.HandleInbound(telephony.Media{Payload: "late"})

	assert.Equal(t, []string{"late"}, session.sentAudio())
}

func TestBridge_AudioToTelephony(t *testing.T) {
	f := newFixture(t, intent.DefaultPredicate)
	f.start(t)

	f.session.events <- convai.Audio{Chunk: "UklGR"}
	require.Eventually(t, func() bool { return len(f.writer.written()) == 1 }, waitFor, tick)
	assert.Equal(t, telephony.MediaFrame("MZ1", "UklGR"), f.writer.written()[0])

	f.session.events <- convai.Interruption{EventID: 2}
	require.Eventually(t, func() bool { return len(f.writer.written()) == 2 }, waitFor, tick)
	assert.Equal(t, telephony.ClearFrame("MZ1"), f.writer.written()[1])
}

func TestBridge_PingAnswered(t *testing.T) {
	f := newFixture(t, intent.DefaultPredicate)
	f.start(t)

	f.session.events <- convai.Ping{EventID: 41}
	require.Eventually(t, func() bool { return len(f.session.sentPongs()) == 1 }, waitFor, tick)
	assert.Equal(t, []int{41}, f.session.sentPongs())
}

func TestBridge_DurationFirstWriteWins(t *testing.T) {
	f := newFixture(t, intent.DefaultPredicate)
	f.start(t)

	f.transcript("I think 30 minutes")
	f.transcript("actually make it an hour")
	f.transcript("My name is Alice Smith")
	require.Eventually(t, func() bool { return f.bridge.State().Intent.Name != "" }, waitFor, tick)

	state := f.bridge.State()
	assert.Equal(t, 30, state.Intent.Duration)
	assert.Equal(t, "Alice Smith", state.Intent.Name)
	assert.False(t, state.BookingTriggered)
}

func TestBridge_BookingTriggeredOnce(t *testing.T) {
	f := newFixture(t, intent.DefaultPredicate)
	f.start(t)

	f.transcript("my name is alice smith")
	f.transcript("email alice@example.com")
	f.transcript("book next tuesday at 3pm for 30 minutes")
	f.transcript("or maybe friday at 2pm")

	var booked intent.BookingIntent
	select {
	case booked = <-f.booker.booked:
	case <-time.After(waitFor):
		t.Fatal("booking was not triggered")
	}
	assert.Equal(t, "Alice Smith", booked.Name)
	assert.Equal(t, "alice@example.com", booked.Email)
	assert.Equal(t, 30, booked.Duration)
	assert.Equal(t, time.Tuesday, booked.Date.Weekday())
	assert.Equal(t, "CA1", f.booker.callSid.Load())

	require.Eventually(t, func() bool {
		return f.bridge.State().Intent.Name != "" && len(f.session.events) == 0
	}, waitFor, tick)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), f.booker.calls.Load())
	assert.True(t, f.bridge.State().BookingTriggered)
}

func TestBridge_OrdinaryWordsDoNotBook(t *testing.T) {
	f := newFixture(t, intent.DefaultPredicate)
	f.start(t)

	f.transcript("you may call me whenever")
	f.transcript("i was born in march")
	f.transcript("My name is Alice Smith")
	require.Eventually(t, func() bool { return f.bridge.State().Intent.Name != "" }, waitFor, tick)

	state := f.bridge.State()
	assert.False(t, state.Intent.Has(intent.FieldDate))
	assert.False(t, state.BookingTriggered)
	assert.Zero(t, f.booker.calls.Load())

	// 之后说出的真实日期仍然生效
	f.transcript("next tuesday at 3pm works")
	select {
	case in := <-f.booker.booked:
		assert.Equal(t, time.Tuesday, in.Date.Weekday())
		assert.Equal(t, 15, in.Date.Hour())
	case <-time.After(waitFor):
		t.Fatal("booking was not triggered")
	}
}

type gatedBooker struct {
	started  chan struct{}
	release  chan struct{}
	finished atomic.Bool
}

func (g *gatedBooker) Book(context.Context, string, intent.BookingIntent) error {
	close(g.started)
	<-g.release
	g.finished.Store(true)
	return nil
}

func TestBridge_WaitCoversTriggeredBooking(t *testing.T) {
	session := newFakeSession()
	booker := &gatedBooker{started: make(chan struct{}), release: make(chan struct{})}
	b := New(Options{
		Out: &fakeWriter{},
		Dial: func(context.Context, map[string]string) (SpeechSession, error) {
			return session, nil
		},
		Booker: booker,
		Logger: zap.NewNop(),
	})

	b.HandleInbound(telephony.Start{StreamSid: "MZ1", CallSid: "CA1"})
	require.Eventually(t, func() bool { return b.State().AdapterOpen }, waitFor, tick)
	session.events <- convai.UserTranscript{Text: "tomorrow at 10am please"}

	select {
	case <-booker.started:
	case <-time.After(waitFor):
		t.Fatal("booking was not triggered")
	}
	b.Close()

	waited := make(chan struct{})
	go func() {
		b.Wait()
		close(waited)
	}()

	select {
	case <-waited:
		t.Fatal("Wait returned before the booking finished")
	case <-time.After(50 * time.Millisecond):
	}

	close(booker.release)
	select {
	case <-waited:
	case <-time.After(waitFor):
		t.Fatal("Wait did not return")
	}
	assert.True(t, booker.finished.Load())
}

func TestBridge_ConfigurablePredicate(t *testing.T) {
	f := newFixture(t, intent.Predicate{Required: []intent.Field{intent.FieldDate, intent.FieldEmail}})
	f.start(t)

	f.transcript("next tuesday at 3pm")
	require.Eventually(t, func() bool { return f.bridge.State().Intent.Has(intent.FieldDate) }, waitFor, tick)
	assert.False(t, f.bridge.State().BookingTriggered)

	f.transcript("it's bob@example.org")
	select {
	case in := <-f.booker.booked:
		assert.Equal(t, "bob@example.org", in.Email)
	case <-time.After(waitFor):
		t.Fatal("booking was not triggered")
	}
}

func TestBridge_BookingFailureOnlyLogged(t *testing.T) {
	f := newFixture(t, intent.DefaultPredicate)
	f.booker.err = errors.New("calendar unavailable")
	f.start(t)

	f.transcript("next tuesday at 3pm")
	<-f.booker.booked

	f.bridge.HandleInbound(telephony.Media{Payload: "AAEC"})
	assert.Equal(t, []string{"AAEC"}, f.session.sentAudio())
	assert.Equal(t, PhaseActive, f.bridge.State().Phase)
}

func TestBridge_StopClosesAdapterOnce(t *testing.T) {
	f := newFixture(t, intent.DefaultPredicate)
	f.start(t)

	f.bridge.HandleInbound(telephony.Stop{StreamSid: "MZ1"})
	state := f.bridge.State()
	assert.Equal(t, PhaseClosed, state.Phase)
	assert.Empty(t, state.StreamSid)
	assert.Empty(t, state.CallSid)
	assert.False(t, state.AdapterOpen)

	f.bridge.HandleInbound(telephony.Media{Payload: "AAEC"})
	f.bridge.HandleInbound(telephony.Stop{StreamSid: "MZ1"})
	f.bridge.Close()
	f.bridge.Wait()

	assert.Empty(t, f.session.sentAudio())
	assert.Equal(t, int32(1), f.session.closes.Load())
}

func TestBridge_LateHandshakeDiscarded(t *testing.T) {
	session := newFakeSession()
	release := make(chan struct{})
	b := New(Options{
		Dial: func(context.Context, map[string]string) (SpeechSession, error) {
			<-release
			return session, nil
		},
		Logger: zap.NewNop(),
	})

	b.HandleInbound(telephony.Start{StreamSid: "MZ1", CallSid: "CA1"})
	b.HandleInbound(telephony.Stop{StreamSid: "MZ1"})
	close(release)
	b.Close()
	b.Wait()

	assert.Equal(t, int32(1), session.closes.Load())
	assert.False(t, b.State().AdapterOpen)
}

func TestBridge_HandshakeFailure(t *testing.T) {
	bus := events.NewEventBus(zap.NewNop())
	failed := make(chan events.Event, 1)
	bus.Subscribe(events.AdapterFailed, func(e events.Event) error {
		failed <- e
		return nil
	})

	b := New(Options{
		Dial: func(context.Context, map[string]string) (SpeechSession, error) {
			return nil, errors.New("401 unauthorized")
		},
		Bus:    bus,
		Logger: zap.NewNop(),
	})
	defer b.Close()

	b.HandleInbound(telephony.Start{StreamSid: "MZ1", CallSid: "CA1"})
	select {
	case e := <-failed:
		assert.Equal(t, b.ID(), e.Source)
	case <-time.After(waitFor):
		t.Fatal("adapter.failed not published")
	}

	b.HandleInbound(telephony.Media{Payload: "AAEC"})
	assert.Equal(t, PhaseActive, b.State().Phase)
	assert.False(t, b.State().AdapterOpen)
}

func TestBridge_RemoteSessionEnd(t *testing.T) {
	f := newFixture(t, intent.DefaultPredicate)
	f.start(t)

	f.session.closeOnce.Do(func() { close(f.session.events) })
	require.Eventually(t, func() bool { return !f.bridge.State().AdapterOpen }, waitFor, tick)

	f.bridge.HandleInbound(telephony.Media{Payload: "AAEC"})
	assert.Empty(t, f.session.sentAudio())
	assert.Equal(t, PhaseActive, f.bridge.State().Phase)
}

func TestBridge_ClosePublishesOnce(t *testing.T) {
	bus := events.NewEventBus(zap.NewNop())
	var closed atomic.Int32
	bus.Subscribe(events.BridgeClosed, func(events.Event) error {
		closed.Add(1)
		return nil
	})

	b := New(Options{Bus: bus, Logger: zap.NewNop()})
	b.Close()
	b.Close()
	b.Wait()

	require.Eventually(t, func() bool { return closed.Load() == 1 }, waitFor, tick)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), closed.Load())
}

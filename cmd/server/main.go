package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	handlers "github.com/logiccrew/OutCalling/internal/handler"
	"github.com/logiccrew/OutCalling/internal/listeners"
	"github.com/logiccrew/OutCalling/internal/task"
	"github.com/logiccrew/OutCalling/pkg/booking"
	"github.com/logiccrew/OutCalling/pkg/bridge"
	"github.com/logiccrew/OutCalling/pkg/config"
	"github.com/logiccrew/OutCalling/pkg/convai"
	"github.com/logiccrew/OutCalling/pkg/events"
	"github.com/logiccrew/OutCalling/pkg/intent"
	"github.com/logiccrew/OutCalling/pkg/logger"
	"github.com/logiccrew/OutCalling/pkg/metrics"
	"github.com/logiccrew/OutCalling/pkg/middleware"
	"github.com/logiccrew/OutCalling/pkg/telephony"
	"go.uber.org/zap"
)

func main() {
	// 1. Parse Command Line Parameters
	mode := flag.String("mode", "", "running environment (development, test, production)")
	flag.Parse()

	// 2. Set Environment Variables
	if *mode != "" {
		os.Setenv("APP_ENV", *mode)
	}

	// 3. Load Global Configuration (missing credentials are fatal)
	if err := config.Load(); err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	cfg := config.GlobalConfig

	// 4. Load Log Configuration
	if err := logger.Init(&cfg.Log, cfg.Mode); err != nil {
		panic(err)
	}
	defer logger.Sync()
	lg := zap.L()
	logger.Info("checked config -- addr: ", zap.String("addr", cfg.Addr))
	logger.Info("checked config -- mode: ", zap.String("mode", cfg.Mode))

	// 5. Booking Completion Predicate
	predicate, err := intent.NewPredicate(cfg.Booking.RequiredFields)
	if err != nil {
		logger.Fatal("invalid BOOKING_REQUIRED_FIELDS", zap.Error(err))
	}
	logger.Info("checked config -- booking fields: ", zap.Strings("required", cfg.Booking.RequiredFields))

	// 6. Booking Collaborators
	calendarCfg := booking.CalendarConfig{
		CredentialsFile: cfg.Booking.CredentialsFile,
		CalendarID:      cfg.Booking.CalendarID,
		DefaultTimeZone: cfg.Booking.DefaultTimeZone,
		DefaultDuration: cfg.Booking.DefaultDuration,
	}
	var calendar booking.EventCreator = booking.NewLogCalendar(calendarCfg, lg)
	if cfg.Booking.CalendarEnabled {
		gc, err := booking.NewGoogleCalendar(context.Background(), calendarCfg, lg)
		if err != nil {
			logger.Fatal("google calendar setup failed", zap.Error(err))
		}
		calendar = gc
	}
	var contacts booking.ContactNotifier
	if cfg.Booking.ContactSinkURL != "" {
		contacts = booking.NewContactSink(cfg.Booking.ContactSinkURL)
	}
	ledger := booking.NewLedger(cfg.Booking.LedgerTTL)
	booker := booking.NewService(calendar, contacts, ledger, lg)

	// 7. Events And Metrics
	bus := events.NewEventBus(lg)
	m := metrics.NewMetrics()
	listeners.InitCallListener(bus, m)

	// 8. Speech Service And Telephony Clients
	dialer := convai.NewDialer(convai.DialerConfig{
		BaseURL:             cfg.ElevenLabsBaseURL,
		APIKey:              cfg.ElevenLabsAPIKey,
		AgentID:             cfg.ElevenLabsAgentID,
		DefaultPrompt:       cfg.DefaultPrompt,
		DefaultFirstMessage: cfg.DefaultFirstMessage,
	}, lg)
	twilio := telephony.NewClient(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioPhoneNumber)

	extractor := intent.NewExtractor()
	newBridge := func(out bridge.FrameWriter) *bridge.Bridge {
		return bridge.New(bridge.Options{
			Out:       out,
			Dial:      bridge.ConvaiDialer(dialer),
			Booker:    booker,
			Extractor: extractor,
			Predicate: predicate,
			Bus:       bus,
			Logger:    lg,
		})
	}

	// 9. Gin Engine And Routes
	if cfg.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(lg))
	r.Use(metrics.GinMiddleware(m))

	h, err := handlers.NewHandlers(handlers.Deps{
		Config:    cfg,
		Calls:     twilio,
		NewBridge: newBridge,
		Metrics:   m,
		Bus:       bus,
		Logger:    lg,
	})
	if err != nil {
		logger.Fatal("handler setup failed", zap.Error(err))
	}
	h.Register(r)

	// 10. Start Call Stats Reporter
	stats, err := task.StartCallStats(cfg.StatsSchedule, h, ledger)
	if err != nil {
		logger.Warn("call stats reporter disabled", zap.String("schedule", cfg.StatsSchedule), zap.Error(err))
	}

	// 11. Start HTTP Server
	httpServer := &http.Server{
		Addr:           cfg.Addr,
		Handler:        r,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB
	}
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", cfg.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server run failed", zap.Error(err))
		}
	}()

	// 12. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	if stats != nil {
		stats.Stop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	// websocket 连接已被劫持，Shutdown 不会关闭它们
	h.CloseAll(ctx)
	logger.Info("Server exited")
}

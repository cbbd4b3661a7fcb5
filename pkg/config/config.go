package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/logiccrew/OutCalling/pkg/logger"
	"github.com/logiccrew/OutCalling/pkg/utils"
)

// ErrMissingConfig 缺少必填配置，进程不应启动
var ErrMissingConfig = errors.New("missing required configuration")

// Config 系统配置
type Config struct {
	Addr       string `env:"ADDR"`
	Mode       string `env:"MODE"`
	PublicHost string `env:"PUBLIC_HOST"`
	Log        logger.LogConfig

	// ElevenLabs Conversational AI
	ElevenLabsAPIKey  string `env:"ELEVENLABS_API_KEY"`
	ElevenLabsAgentID string `env:"ELEVENLABS_AGENT_ID"`
	ElevenLabsBaseURL string `env:"ELEVENLABS_BASE_URL"`

	// Twilio
	TwilioAccountSID  string `env:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken   string `env:"TWILIO_AUTH_TOKEN"`
	TwilioPhoneNumber string `env:"TWILIO_PHONE_NUMBER"`

	// 对话默认值与外呼提示语
	DefaultPrompt       string `env:"DEFAULT_PROMPT"`
	DefaultFirstMessage string `env:"DEFAULT_FIRST_MESSAGE"`
	VoicemailMessage    string `env:"VOICEMAIL_MESSAGE"`
	MissedCallMessage   string `env:"MISSED_CALL_MESSAGE"`
	OutboundCallRate    string `env:"OUTBOUND_CALL_RATE"`

	Booking BookingConfig

	StatsSchedule string `env:"STATS_SCHEDULE"`
}

// BookingConfig 预约相关配置
type BookingConfig struct {
	RequiredFields  []string      `env:"BOOKING_REQUIRED_FIELDS"`
	LedgerTTL       time.Duration `env:"BOOKING_LEDGER_TTL"`
	CalendarEnabled bool          `env:"CALENDAR_ENABLED"`
	CredentialsFile string        `env:"GOOGLE_CREDENTIALS_FILE"`
	CalendarID      string        `env:"CALENDAR_ID"`
	DefaultTimeZone string        `env:"CALENDAR_DEFAULT_TIMEZONE"`
	DefaultDuration int           `env:"CALENDAR_DEFAULT_DURATION"`
	ContactSinkURL  string        `env:"CONTACT_SINK_URL"`
}

var GlobalConfig *Config

// Load 加载 .env 与环境变量，缺少必填项时返回 ErrMissingConfig
func Load() error {
	// 1. 根据环境加载 .env 文件（不存在时使用进程环境变量）
	env := os.Getenv("APP_ENV")
	if err := utils.LoadEnv(env); err != nil {
		log.Printf("Note: .env file not found or failed to load: %v (using process environment)", err)
	}

	// 2. 构建配置
	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		return err
	}
	GlobalConfig = cfg
	return nil
}

// FromEnv 从环境变量构建配置（不做校验）
func FromEnv() *Config {
	required := utils.SplitEnvList("BOOKING_REQUIRED_FIELDS")
	if len(required) == 0 {
		required = []string{"date"}
	}

	return &Config{
		Addr:       resolveAddr(),
		Mode:       getStringOrDefault("MODE", "development"),
		PublicHost: getStringOrDefault("PUBLIC_HOST", ""),
		Log: logger.LogConfig{
			Level:      getStringOrDefault("LOG_LEVEL", "info"),
			Filename:   getStringOrDefault("LOG_FILENAME", "./logs/outcalling.log"),
			MaxSize:    getIntOrDefault("LOG_MAX_SIZE", 100),
			MaxAge:     getIntOrDefault("LOG_MAX_AGE", 30),
			MaxBackups: getIntOrDefault("LOG_MAX_BACKUPS", 5),
			Compress:   getBoolOrDefault("LOG_COMPRESS", false),
		},
		ElevenLabsAPIKey:    getStringOrDefault("ELEVENLABS_API_KEY", ""),
		ElevenLabsAgentID:   getStringOrDefault("ELEVENLABS_AGENT_ID", ""),
		ElevenLabsBaseURL:   getStringOrDefault("ELEVENLABS_BASE_URL", "https://api.elevenlabs.io"),
		TwilioAccountSID:    getStringOrDefault("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:     getStringOrDefault("TWILIO_AUTH_TOKEN", ""),
		TwilioPhoneNumber:   getStringOrDefault("TWILIO_PHONE_NUMBER", ""),
		DefaultPrompt:       getStringOrDefault("DEFAULT_PROMPT", "you are a gary from the phone store"),
		DefaultFirstMessage: getStringOrDefault("DEFAULT_FIRST_MESSAGE", "hey there! how can I help you today?"),
		VoicemailMessage: getStringOrDefault("VOICEMAIL_MESSAGE",
			"Hello, this is a courtesy call. We tried to reach you and will try again later. "+
				"If you would like to book a meeting in the meantime, please call us back. Goodbye."),
		MissedCallMessage: getStringOrDefault("MISSED_CALL_MESSAGE", "Sorry we missed you. Goodbye."),
		OutboundCallRate:  getStringOrDefault("OUTBOUND_CALL_RATE", "30-M"),
		Booking: BookingConfig{
			RequiredFields:  required,
			LedgerTTL:       getDurationOrDefault("BOOKING_LEDGER_TTL", time.Hour),
			CalendarEnabled: getBoolOrDefault("CALENDAR_ENABLED", true),
			CredentialsFile: getStringOrDefault("GOOGLE_CREDENTIALS_FILE", "credentials.json"),
			CalendarID:      getStringOrDefault("CALENDAR_ID", "primary"),
			DefaultTimeZone: getStringOrDefault("CALENDAR_DEFAULT_TIMEZONE", "Australia/Melbourne"),
			DefaultDuration: getIntOrDefault("CALENDAR_DEFAULT_DURATION", 30),
			ContactSinkURL:  getStringOrDefault("CONTACT_SINK_URL", ""),
		},
		StatsSchedule: getStringOrDefault("STATS_SCHEDULE", "@every 1m"),
	}
}

// Validate 校验必填项
func (c *Config) Validate() error {
	required := []struct {
		key   string
		value string
	}{
		{"ELEVENLABS_API_KEY", c.ElevenLabsAPIKey},
		{"ELEVENLABS_AGENT_ID", c.ElevenLabsAgentID},
		{"TWILIO_ACCOUNT_SID", c.TwilioAccountSID},
		{"TWILIO_AUTH_TOKEN", c.TwilioAuthToken},
		{"TWILIO_PHONE_NUMBER", c.TwilioPhoneNumber},
	}

	var missing []string
	for _, r := range required {
		if r.value == "" {
			missing = append(missing, r.key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingConfig, strings.Join(missing, ", "))
	}
	if c.Booking.DefaultDuration <= 0 {
		return fmt.Errorf("CALENDAR_DEFAULT_DURATION must be positive, got %d", c.Booking.DefaultDuration)
	}
	if _, err := time.LoadLocation(c.Booking.DefaultTimeZone); err != nil {
		return fmt.Errorf("CALENDAR_DEFAULT_TIMEZONE %q: %w", c.Booking.DefaultTimeZone, err)
	}
	return nil
}

// resolveAddr ADDR 优先，其次 PORT，默认 :8000
func resolveAddr() string {
	if addr := utils.GetEnv("ADDR"); addr != "" {
		return addr
	}
	return ":" + getStringOrDefault("PORT", "8000")
}

// getStringOrDefault 获取环境变量值，如果为空则返回默认值
func getStringOrDefault(key, defaultValue string) string {
	value := utils.GetEnv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getBoolOrDefault 获取布尔环境变量值，如果为空则返回默认值
func getBoolOrDefault(key string, defaultValue bool) bool {
	value := utils.GetEnv(key)
	if value == "" {
		return defaultValue
	}
	return utils.GetBoolEnv(key)
}

// getIntOrDefault 获取整数环境变量值，如果为空则返回默认值
func getIntOrDefault(key string, defaultValue int) int {
	value := utils.GetIntEnv(key)
	if value == 0 {
		return defaultValue
	}
	return int(value)
}

// getDurationOrDefault 解析时长（如 90m, 1h），无效时返回默认值
func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(utils.GetEnv(key))
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}

package config

import "go.uber.org/zap/zapcore"

// LogEncoder defines a log encoder kind.
type LogEncoder = string

const (
	defaultLoggingLevel = zapcore.InfoLevel
	// ConsoleLogEncoder represents logging with plain text.
	ConsoleLogEncoder LogEncoder = "console"
	// JSONLogEncoder represents logging with JSON.
	JSONLogEncoder LogEncoder = "json"
)

// LoggerConfig holds the logging level for each component.
type LoggerConfig struct {
	Encoder            LogEncoder `mapstructure:"log-encoder"`
	AppLoggerLevel     string     `mapstructure:"app"`
	SyncerLoggerLevel  string     `mapstructure:"syncer"`
	RTCLoggerLevel     string     `mapstructure:"rtc"`
	SignalLoggerLevel  string     `mapstructure:"signal"`
	StoreLoggerLevel   string     `mapstructure:"store"`
	EventsLoggerLevel  string     `mapstructure:"events"`
	MetricsLoggerLevel string     `mapstructure:"metrics"`
}

// DefaultLoggingConfig returns the default per-component levels.
func DefaultLoggingConfig() LoggerConfig {
	return LoggerConfig{
		Encoder:            ConsoleLogEncoder,
		AppLoggerLevel:     defaultLoggingLevel.String(),
		SyncerLoggerLevel:  defaultLoggingLevel.String(),
		RTCLoggerLevel:     zapcore.WarnLevel.String(),
		SignalLoggerLevel:  defaultLoggingLevel.String(),
		StoreLoggerLevel:   defaultLoggingLevel.String(),
		EventsLoggerLevel:  defaultLoggingLevel.String(),
		MetricsLoggerLevel: defaultLoggingLevel.String(),
	}
}

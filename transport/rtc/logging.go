package rtc

import (
	"github.com/pion/logging"
	"go.uber.org/zap"
)

// loggerFactory routes pion logs into zap.
type loggerFactory struct {
	logger *zap.Logger
}

func (f loggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return pionLogger{f.logger.Named(scope).Sugar()}
}

type pionLogger struct {
	*zap.SugaredLogger
}

func (l pionLogger) Trace(msg string) { l.Debug(msg) }

func (l pionLogger) Tracef(format string, args ...any) { l.Debugf(format, args...) }

func (l pionLogger) Debug(msg string) { l.SugaredLogger.Debug(msg) }

func (l pionLogger) Info(msg string) { l.SugaredLogger.Info(msg) }

func (l pionLogger) Warn(msg string) { l.SugaredLogger.Warn(msg) }

func (l pionLogger) Error(msg string) { l.SugaredLogger.Error(msg) }

var _ logging.LeveledLogger = pionLogger{}

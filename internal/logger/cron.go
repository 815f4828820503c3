package logger

import "github.com/robfig/cron/v3"

type cronLogger struct {
	l Logger
}

// Cron adapts l for robfig/cron so recovered panics and skipped runs reach
// the application log (and Rollbar when enabled).
func Cron(l Logger) cron.Logger {
	if l == nil {
		l = Nop{}
	}
	return cronLogger{l: l}
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("[CRON] "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("[CRON] "+msg, append(keysAndValues, err)...)
}

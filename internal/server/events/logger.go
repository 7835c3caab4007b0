package events

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
)

// LoggerAdapter routes Watermill's internal logging into logging.Logger.
type LoggerAdapter struct {
	logger logging.Logger
}

func NewLoggerAdapter(l logging.Logger) *LoggerAdapter {
	return &LoggerAdapter{logger: l.With("module", "watermill")}
}

func (a *LoggerAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.logger.Error(context.Background(), msg, append(flatten(fields), "error", err)...)
}

func (a *LoggerAdapter) Info(msg string, fields watermill.LogFields) {
	a.logger.Info(context.Background(), msg, flatten(fields)...)
}

func (a *LoggerAdapter) Debug(msg string, fields watermill.LogFields) {
	a.logger.Debug(context.Background(), msg, flatten(fields)...)
}

// Trace is folded into Debug.
func (a *LoggerAdapter) Trace(msg string, fields watermill.LogFields) {
	a.logger.Debug(context.Background(), msg, flatten(fields)...)
}

func (a *LoggerAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &LoggerAdapter{logger: a.logger.With(flatten(fields)...)}
}

func flatten(fields watermill.LogFields) []any {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return args
}

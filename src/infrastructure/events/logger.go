package events

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/go-logr/logr"
)

// LoggerAdapter routes watermill logs to a logr logger.
type LoggerAdapter struct {
	logger logr.Logger
	fields watermill.LogFields
}

func NewLoggerAdapter(logger logr.Logger) *LoggerAdapter {
	return &LoggerAdapter{logger: logger.WithName("watermill")}
}

func (l *LoggerAdapter) Error(msg string, err error, fields watermill.LogFields) {
	l.logger.Error(err, msg, l.keysAndValues(fields)...)
}

func (l *LoggerAdapter) Info(msg string, fields watermill.LogFields) {
	l.logger.Info(msg, l.keysAndValues(fields)...)
}

func (l *LoggerAdapter) Debug(msg string, fields watermill.LogFields) {
	l.logger.V(1).Info(msg, l.keysAndValues(fields)...)
}

func (l *LoggerAdapter) Trace(msg string, fields watermill.LogFields) {
	l.logger.V(2).Info(msg, l.keysAndValues(fields)...)
}

func (l *LoggerAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &LoggerAdapter{
		logger: l.logger,
		fields: l.fields.Add(fields),
	}
}

func (l *LoggerAdapter) keysAndValues(fields watermill.LogFields) []interface{} {
	all := l.fields.Add(fields)
	kv := make([]interface{}, 0, len(all)*2)
	for k, v := range all {
		kv = append(kv, k, v)
	}
	return kv
}

package watchdog

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"sosinternet/internal/models"
)

// Sink receives watchdog progress events. Emit must not block for long; it is
// called from the monitoring loop.
type Sink interface {
	Emit(models.Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(models.Event)

func (f SinkFunc) Emit(ev models.Event) { f(ev) }

// Sinks fans an event out to every member in order.
type Sinks []Sink

func (s Sinks) Emit(ev models.Event) {
	for _, sink := range s {
		if sink != nil {
			sink.Emit(ev)
		}
	}
}

// LogSink writes events as structured log entries at the level their kind implies.
type LogSink struct {
	Logger *zap.Logger
}

func (l LogSink) Emit(ev models.Event) {
	if l.Logger == nil {
		return
	}
	level, err := zapcore.ParseLevel(ev.Kind.Severity())
	if err != nil {
		level = zapcore.InfoLevel
	}
	ce := l.Logger.Check(level, ev.Message)
	if ce == nil {
		return
	}

	fields := []zap.Field{zap.String("event", string(ev.Kind))}
	if ev.EscalationID != "" {
		fields = append(fields, zap.String("escalation_id", ev.EscalationID))
	}
	if ev.Attempt > 0 {
		fields = append(fields, zap.Int("attempt", ev.Attempt))
	}
	if ev.MaxAttempts > 0 {
		fields = append(fields, zap.Int("max_attempts", ev.MaxAttempts))
	}
	if ev.Status != nil {
		fields = append(fields, zap.Bool("connected", ev.Status.Connected))
		if ms := ev.Status.LatencyMs(); ms >= 0 {
			fields = append(fields, zap.Float64("latency_ms", ms))
		}
		if ev.Status.Target != "" {
			fields = append(fields, zap.String("target", ev.Status.Target))
		}
	}
	if ev.Error != "" {
		fields = append(fields, zap.String("error", ev.Error))
	}
	ce.Write(fields...)

	// The full probe report is multi-line; keep it at debug.
	if ev.Status != nil && ev.Status.Detail != "" {
		l.Logger.Debug("connection details", zap.String("event", string(ev.Kind)), zap.String("detail", ev.Status.Detail))
	}
}

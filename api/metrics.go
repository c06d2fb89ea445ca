package api

import (
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName         = "github.com/crypticpy/Grantscope-2-sub004/api"
	requestSpanName    = "board.request"
	requestEventName   = "board.request.completed"
	requestEventDomain = "board"
	observabilityMsg   = "observability.event"
)

// requestMetrics times one request and reports it as a log entry and a span.
type requestMetrics struct {
	logger *log.Logger
	route  string
	start  time.Time
	span   trace.Span

	authDuration   time.Duration
	storeDuration  time.Duration
	encodeDuration time.Duration
	itemsReturned  int
	commands       int
	rejected       int
	errorStage     string
}

func newRequestMetrics(ctx context.Context, logger *log.Logger, route string) (*requestMetrics, context.Context) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, requestSpanName,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("http.route", route)),
	)
	return &requestMetrics{logger: logger, route: route, start: time.Now(), span: span}, ctx
}

func (m *requestMetrics) ObserveAuth(d time.Duration) {
	if d > 0 {
		m.authDuration = d
	}
}

func (m *requestMetrics) ObserveStore(d time.Duration) {
	if d > 0 {
		m.storeDuration += d
	}
}

func (m *requestMetrics) ObserveEncode(d time.Duration) {
	if d > 0 {
		m.encodeDuration = d
	}
}

func (m *requestMetrics) SetItemsReturned(n int) {
	if n < 0 {
		n = 0
	}
	m.itemsReturned = n
}

func (m *requestMetrics) SetCommands(total, rejected int) {
	m.commands = total
	m.rejected = rejected
}

func (m *requestMetrics) SetErrorStage(stage string) {
	if stage != "" {
		m.errorStage = stage
	}
}

func (m *requestMetrics) attributes(status int, err error) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("http.route", m.route),
		attribute.Int("http.status_code", status),
		attribute.Float64("board.total_ms", durationToMillis(time.Since(m.start))),
		attribute.Int("board.items_returned", m.itemsReturned),
		attribute.Int("board.commands", m.commands),
		attribute.Int("board.commands_rejected", m.rejected),
	}
	if m.authDuration > 0 {
		attrs = append(attrs, attribute.Float64("board.auth_ms", durationToMillis(m.authDuration)))
	}
	if m.storeDuration > 0 {
		attrs = append(attrs, attribute.Float64("board.store_ms", durationToMillis(m.storeDuration)))
	}
	if m.encodeDuration > 0 {
		attrs = append(attrs, attribute.Float64("board.encode_ms", durationToMillis(m.encodeDuration)))
	}
	if m.errorStage != "" {
		attrs = append(attrs, attribute.String("board.error_stage", m.errorStage))
	}
	if err != nil {
		attrs = append(attrs, attribute.String("error.message", err.Error()))
	}
	return attrs
}

// Log ends the span and writes the request summary.
func (m *requestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}
	severity, number := severityForStatus(status, err)
	attrs := m.attributes(status, err)

	if m.span != nil {
		m.span.SetAttributes(attrs...)
		event := append([]attribute.KeyValue{
			attribute.String("event.name", requestEventName),
			attribute.String("event.domain", requestEventDomain),
			attribute.String("severity_text", severity),
			attribute.Int("severity_number", number),
		}, attrs...)
		m.span.AddEvent(observabilityMsg, trace.WithAttributes(event...))
		if severity == "ERROR" {
			desc := http.StatusText(status)
			if err != nil {
				desc = err.Error()
			}
			m.span.SetStatus(codes.Error, desc)
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}
	fields := log.Fields{
		"event.name":      requestEventName,
		"event.domain":    requestEventDomain,
		"severity_text":   severity,
		"severity_number": number,
		"attributes":      attributeMap(attrs),
	}
	if m.span != nil {
		if sc := m.span.SpanContext(); sc.HasTraceID() {
			fields["trace_id"] = sc.TraceID().String()
			fields["span_id"] = sc.SpanID().String()
		}
	}
	entry := m.logger.WithFields(fields)
	switch severity {
	case "ERROR":
		entry.Error(observabilityMsg)
	case "WARN":
		entry.Warn(observabilityMsg)
	default:
		entry.Info(observabilityMsg)
	}
}

// severityForStatus maps a response to OpenTelemetry log severity.
func severityForStatus(status int, err error) (string, int) {
	switch {
	case status >= http.StatusInternalServerError, status == 0 && err != nil:
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	default:
		return "INFO", 9
	}
}

func attributeMap(attrs []attribute.KeyValue) map[string]any {
	out := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}

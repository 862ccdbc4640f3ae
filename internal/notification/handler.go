// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package notification

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	flowlog "github.com/tombee/flowtrace/internal/log"
	"github.com/tombee/flowtrace/internal/tracing"
	"github.com/tombee/flowtrace/internal/tracing/redact"
	flowerrors "github.com/tombee/flowtrace/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// Protocol violation reasons, used as the metric label and in logs.
const (
	ReasonMissingCorrelationID  = "missing_correlation_id"
	ReasonOrphanPipelineEnd     = "orphan_pipeline_end"
	ReasonOrphanProcessorStart  = "orphan_processor_start"
	ReasonOrphanProcessorEnd    = "orphan_processor_end"
	ReasonUnmatchedProcessorEnd = "unmatched_processor_end"
	ReasonPipelineNameMismatch  = "pipeline_name_mismatch"
	ReasonForceClosed           = "force_closed"
	ReasonUnknownAction         = "unknown_action"
	ReasonPanic                 = "panic"
)

// Suppression reasons.
const (
	suppressDisabled    = "disabled"
	suppressExcluded    = "excluded"
	suppressUnavailable = "unavailable"
)

// Span end statuses recorded in metrics.
const (
	statusOK          = "ok"
	statusError       = "error"
	statusForceClosed = "force_closed"
)

// Handler turns lifecycle events into spans. It keeps one span stack per
// correlation id and is safe for concurrent use: events for one id are
// serialized, events for different ids do not contend beyond a map lookup.
//
// No method returns an error or panics; out-of-protocol events are logged,
// counted, and reconciled as well as possible.
type Handler struct {
	policy   *tracing.SpanPolicy
	source   tracing.ConnectionSource
	redactor *redact.Redactor
	metrics  *tracing.MetricsCollector
	logger   *slog.Logger

	violationLog *rate.Sometimes

	// unavailable is set once the connection turned out to be the no-op
	// fallback; later events are dropped without violation noise.
	unavailable atomic.Bool

	mu         sync.Mutex
	executions map[string]*executionContext
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithRedactor scrubs host attributes and error messages before they are
// attached to spans.
func WithRedactor(r *redact.Redactor) HandlerOption {
	return func(h *Handler) {
		h.redactor = r
	}
}

// WithMetrics records handler activity in mc.
func WithMetrics(mc *tracing.MetricsCollector) HandlerOption {
	return func(h *Handler) {
		h.metrics = mc
	}
}

// WithLogger sets the handler logger.
func WithLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithViolationLogSampling logs the first n protocol violations and then
// at most one per interval. Metrics always count every violation.
func WithViolationLogSampling(n int, interval time.Duration) HandlerOption {
	return func(h *Handler) {
		h.violationLog = &rate.Sometimes{First: n, Interval: interval}
	}
}

// NewHandler creates a handler that evaluates policy before any span work
// and obtains its connection from source on the first traced pipeline.
func NewHandler(policy *tracing.SpanPolicy, source tracing.ConnectionSource, opts ...HandlerOption) *Handler {
	h := &Handler{
		policy:       policy,
		source:       source,
		logger:       slog.Default(),
		violationLog: &rate.Sometimes{First: 10, Interval: 10 * time.Second},
		executions:   make(map[string]*executionContext),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = flowlog.Discard()
	}
	h.logger = flowlog.WithComponent(h.logger, "notification")
	h.metrics.SetExecutionCounter(h)
	return h
}

// ActiveExecutions returns the number of correlation ids with open spans.
func (h *Handler) ActiveExecutions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.executions)
}

// OpenSpans returns the stack depth for a correlation id.
func (h *Handler) OpenSpans(correlationID string) int {
	ec := h.acquire(correlationID, false)
	if ec == nil {
		return 0
	}
	defer ec.mu.Unlock()
	return len(ec.stack)
}

// OnPipelineStart opens a pipeline span. The first pipeline of a
// correlation id becomes the root of a new trace; a pipeline started while
// the id already has open spans (a flow reference) nests under the top.
func (h *Handler) OnPipelineStart(ev PipelineEvent) {
	defer h.recoverPanic("pipeline_start", ev.CorrelationID)
	ctx := context.Background()

	if !h.policy.TracingEnabled() {
		h.metrics.RecordSuppressed(ctx, suppressDisabled)
		return
	}
	if ev.CorrelationID == "" {
		h.violation(ctx, ReasonMissingCorrelationID, "", "pipeline "+ev.PipelineName)
		return
	}

	conn := h.source.Connection()
	if !conn.Enabled() {
		h.unavailable.Store(true)
		h.metrics.RecordSuppressed(ctx, suppressUnavailable)
		return
	}

	ec := h.acquire(ev.CorrelationID, true)
	defer ec.mu.Unlock()
	if ec.tracer == nil {
		ec.tracer = conn.Tracer()
	}

	ts := timestamp(ev.Timestamp)
	attrs := []attribute.KeyValue{
		tracing.AttrCorrelationID.String(ev.CorrelationID),
		tracing.AttrPipelineName.String(ev.PipelineName),
	}

	parent := context.Background()
	opts := []trace.SpanStartOption{trace.WithTimestamp(ts)}
	if top := ec.top(); top != nil {
		parent = top.ctx
		attrs = append(attrs, tracing.AttrPipelineNested.Bool(true))
		opts = append(opts, trace.WithSpanKind(trace.SpanKindInternal))
	} else {
		opts = append(opts, trace.WithNewRoot(), trace.WithSpanKind(trace.SpanKindServer))
	}
	attrs = append(attrs, h.redactor.RedactAttributes(tracing.Attributes(ev.Attributes))...)
	opts = append(opts, trace.WithAttributes(attrs...))

	spanCtx, span := ec.tracer.Start(parent, pipelineSpanName(ev.PipelineName), opts...)
	ec.push(&activeSpan{
		span:  span,
		ctx:   spanCtx,
		kind:  kindPipeline,
		name:  ev.PipelineName,
		key:   ev.PipelineName,
		start: ts,
	})
	h.metrics.RecordSpanStart(ctx, kindPipeline.String())
	flowlog.Trace(h.logger, "pipeline span opened",
		slog.String(flowlog.CorrelationIDKey, ev.CorrelationID),
		slog.String(flowlog.PipelineKey, ev.PipelineName),
		slog.Int("depth", len(ec.stack)))
}

// OnPipelineEnd closes the topmost pipeline span, force-closing anything
// left open above it, and evicts the execution once its stack is empty.
func (h *Handler) OnPipelineEnd(ev PipelineEvent) {
	defer h.recoverPanic("pipeline_end", ev.CorrelationID)
	ctx := context.Background()

	if !h.policy.TracingEnabled() {
		h.metrics.RecordSuppressed(ctx, suppressDisabled)
		return
	}

	ec := h.acquire(ev.CorrelationID, false)
	if ec == nil {
		h.orphan(ctx, ReasonOrphanPipelineEnd, ev.CorrelationID, "pipeline "+ev.PipelineName)
		return
	}
	defer ec.mu.Unlock()

	idx := ec.find(func(s *activeSpan) bool {
		return s.kind == kindPipeline && s.name == ev.PipelineName
	})
	if idx < 0 {
		idx = ec.find(func(s *activeSpan) bool { return s.kind == kindPipeline })
		if idx < 0 {
			// Unreachable while the root pipeline is at the bottom, but keep
			// the stack bounded if it ever happens.
			h.violation(ctx, ReasonOrphanPipelineEnd, ev.CorrelationID, "no open pipeline span")
			h.forceCloseAll(ctx, ec, timestamp(ev.Timestamp))
			h.evict(ec)
			return
		}
		h.violation(ctx, ReasonPipelineNameMismatch, ev.CorrelationID,
			fmt.Sprintf("end for %q closed open pipeline %q", ev.PipelineName, ec.stack[idx].name))
	}

	ts := timestamp(ev.Timestamp)
	above, target := ec.unwind(idx)
	for _, s := range above {
		h.forceClose(ctx, ec.id, s, ts)
	}
	status := h.finish(ctx, target, ev.Attributes, ev.Err, ts)
	h.metrics.RecordPipelineComplete(ctx, target.name, status, ts.Sub(target.start))

	if ec.empty() {
		h.evict(ec)
		flowlog.Trace(flowlog.WithExecutionContext(h.logger, ev.CorrelationID, target.name),
			"execution closed", slog.String("status", status))
	}
}

// OnProcessorStart opens a processor span under the current stack top.
// The policy is consulted before anything else.
func (h *Handler) OnProcessorStart(ev ProcessorEvent) {
	defer h.recoverPanic("processor_start", ev.CorrelationID)
	ctx := context.Background()

	if h.suppressed(ctx, ev.ProcessorID) {
		return
	}

	ec := h.acquire(ev.CorrelationID, false)
	if ec == nil {
		h.orphan(ctx, ReasonOrphanProcessorStart, ev.CorrelationID, "processor "+ev.matchKey())
		return
	}
	defer ec.mu.Unlock()

	top := ec.top()
	if top == nil {
		// Unreachable: a context is only mapped while its stack holds the
		// root pipeline, and it is evicted as soon as that pops.
		h.violation(ctx, ReasonOrphanProcessorStart, ev.CorrelationID, "processor "+ev.matchKey())
		h.evict(ec)
		return
	}
	ts := timestamp(ev.Timestamp)
	attrs := []attribute.KeyValue{
		tracing.AttrCorrelationID.String(ev.CorrelationID),
		tracing.AttrPipelineName.String(ev.PipelineName),
		tracing.AttrProcessorID.String(ev.ProcessorID),
	}
	if ev.Location != "" {
		attrs = append(attrs, tracing.AttrProcessorLocation.String(ev.Location))
	}
	if ev.DocName != "" {
		attrs = append(attrs, tracing.AttrProcessorDocName.String(ev.DocName))
	}
	attrs = append(attrs, h.redactor.RedactAttributes(tracing.Attributes(ev.Attributes))...)

	spanCtx, span := ec.tracer.Start(top.ctx, ev.spanName(),
		trace.WithTimestamp(ts),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
	ec.push(&activeSpan{
		span:  span,
		ctx:   spanCtx,
		kind:  kindProcessor,
		name:  ev.spanName(),
		key:   ev.matchKey(),
		start: ts,
	})
	h.metrics.RecordSpanStart(ctx, kindProcessor.String())
	flowlog.Trace(h.logger, "processor span opened",
		slog.String(flowlog.CorrelationIDKey, ev.CorrelationID),
		slog.String(flowlog.ProcessorKey, ev.matchKey()))
}

// OnProcessorEnd closes the matching processor span. Policy suppression
// mirrors OnProcessorStart so excluded processors never touch the stack.
func (h *Handler) OnProcessorEnd(ev ProcessorEvent) {
	defer h.recoverPanic("processor_end", ev.CorrelationID)
	ctx := context.Background()

	if h.suppressed(ctx, ev.ProcessorID) {
		return
	}

	ec := h.acquire(ev.CorrelationID, false)
	if ec == nil {
		h.orphan(ctx, ReasonOrphanProcessorEnd, ev.CorrelationID, "processor "+ev.matchKey())
		return
	}
	defer ec.mu.Unlock()

	key := ev.matchKey()
	idx := ec.find(func(s *activeSpan) bool {
		return s.kind == kindProcessor && s.key == key
	})
	if idx < 0 {
		h.violation(ctx, ReasonUnmatchedProcessorEnd, ev.CorrelationID, "processor "+key)
		return
	}

	ts := timestamp(ev.Timestamp)
	above, target := ec.unwind(idx)
	for _, s := range above {
		h.forceClose(ctx, ec.id, s, ts)
	}
	h.finish(ctx, target, ev.Attributes, ev.Err, ts)
}

// RecordUnknownAction counts a notification whose action is not recognized.
func (h *Handler) RecordUnknownAction(correlationID string, action Action) {
	h.violation(context.Background(), ReasonUnknownAction, correlationID, fmt.Sprintf("action %q", action))
}

// acquire returns the execution context for id with its mutex held, or nil.
// With create set a missing or concurrently evicted context is replaced by
// a fresh one.
func (h *Handler) acquire(id string, create bool) *executionContext {
	for {
		h.mu.Lock()
		ec, ok := h.executions[id]
		if !ok {
			if !create {
				h.mu.Unlock()
				return nil
			}
			ec = newExecutionContext(id)
			h.executions[id] = ec
		}
		h.mu.Unlock()

		ec.mu.Lock()
		if !ec.closed {
			return ec
		}
		// Evicted between lookup and lock; the map no longer holds it.
		ec.mu.Unlock()
		if !create {
			return nil
		}
	}
}

// evict removes ec from the map. The caller holds ec.mu.
func (h *Handler) evict(ec *executionContext) {
	ec.closed = true
	h.mu.Lock()
	if cur, ok := h.executions[ec.id]; ok && cur == ec {
		delete(h.executions, ec.id)
	}
	h.mu.Unlock()
}

func (h *Handler) suppressed(ctx context.Context, processorID string) bool {
	if h.policy.Evaluate(processorID) == tracing.Emit {
		return false
	}
	reason := suppressExcluded
	if !h.policy.TracingEnabled() {
		reason = suppressDisabled
	}
	h.metrics.RecordSuppressed(ctx, reason)
	return true
}

// finish records the outcome on s and ends it. It returns the metric status.
func (h *Handler) finish(ctx context.Context, s *activeSpan, attrs map[string]any, err error, ts time.Time) string {
	if len(attrs) > 0 {
		s.span.SetAttributes(h.redactor.RedactAttributes(tracing.Attributes(attrs))...)
	}

	status := statusOK
	if err == nil {
		s.span.SetStatus(codes.Ok, "")
	} else {
		status = statusError
		h.recordError(s.span, err, ts)
	}
	s.span.End(trace.WithTimestamp(ts))
	h.metrics.RecordSpanEnd(ctx, s.kind.String(), status)
	return status
}

// recordError adds the exception event and error status. The message goes
// through the redactor, so span.RecordError is not used directly.
func (h *Handler) recordError(span trace.Span, err error, ts time.Time) {
	message := h.redactor.RedactString(err.Error())
	errType := fmt.Sprintf("%T", err)

	eventAttrs := []attribute.KeyValue{}
	if exc, ok := err.(*Exception); ok {
		if exc.Type != "" {
			errType = exc.Type
			span.SetAttributes(tracing.AttrExceptionType.String(exc.Type))
		}
		if exc.Detail != "" {
			eventAttrs = append(eventAttrs, semconv.ExceptionStacktrace(h.redactor.RedactString(exc.Detail)))
		}
	}
	eventAttrs = append(eventAttrs,
		semconv.ExceptionType(errType),
		semconv.ExceptionMessage(message),
	)

	span.AddEvent(semconv.ExceptionEventName, trace.WithTimestamp(ts), trace.WithAttributes(eventAttrs...))
	span.SetStatus(codes.Error, message)
}

func (h *Handler) forceClose(ctx context.Context, correlationID string, s *activeSpan, ts time.Time) {
	s.span.SetAttributes(tracing.AttrForceClosed.Bool(true))
	s.span.SetStatus(codes.Error, tracing.ForceClosedMessage)
	s.span.End(trace.WithTimestamp(ts))
	h.metrics.RecordSpanEnd(ctx, s.kind.String(), statusForceClosed)
	h.violation(ctx, ReasonForceClosed, correlationID, fmt.Sprintf("%s %s", s.kind, s.name))
}

func (h *Handler) forceCloseAll(ctx context.Context, ec *executionContext, ts time.Time) {
	if ec.empty() {
		return
	}
	above, target := ec.unwind(0)
	for _, s := range append(above, target) {
		h.forceClose(ctx, ec.id, s, ts)
	}
}

// orphan reports an event for an unknown correlation id, unless tracing is
// unavailable and every event is expected to be unknown.
func (h *Handler) orphan(ctx context.Context, reason, correlationID, detail string) {
	if h.unavailable.Load() {
		h.metrics.RecordSuppressed(ctx, suppressUnavailable)
		return
	}
	h.violation(ctx, reason, correlationID, detail)
}

func (h *Handler) violation(ctx context.Context, reason, correlationID, detail string) {
	h.metrics.RecordViolation(ctx, reason)
	err := &flowerrors.ProtocolError{Reason: reason, CorrelationID: correlationID, Detail: detail}
	h.violationLog.Do(func() {
		h.logger.Warn("ignoring out-of-protocol notification",
			flowlog.CorrelationIDKey, correlationID,
			"reason", reason,
			flowlog.Error(err))
	})
}

func (h *Handler) recoverPanic(op, correlationID string) {
	if r := recover(); r != nil {
		h.metrics.RecordViolation(context.Background(), ReasonPanic)
		h.logger.Error("recovered panic in notification handler",
			flowlog.EventKey, op,
			flowlog.CorrelationIDKey, correlationID,
			"panic", fmt.Sprint(r))
	}
}

func timestamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}

func pipelineSpanName(name string) string {
	if name == "" {
		return "pipeline"
	}
	return name
}

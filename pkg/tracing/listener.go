// Package tracing exports one span per group and per case to an OTLP
// collector when the suite runs with enable-tracing.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/psantana5/testsuite/pkg/engine"
)

// Listener records group and case spans. Case spans are children of their
// group span.
type Listener struct {
	engine.EmptyListener

	tracer    trace.Tracer
	groupCtx  context.Context
	groupSpan trace.Span
	caseSpan  trace.Span
}

// Listener returns an engine listener bound to p.
func (p *Provider) Listener() *Listener {
	return &Listener{tracer: p.tracer, groupCtx: context.Background()}
}

// OnGroupStart implements engine.Listener.
func (l *Listener) OnGroupStart(g *engine.GroupInfo) {
	l.groupCtx, l.groupSpan = l.tracer.Start(context.Background(), "group "+g.Name,
		trace.WithAttributes(
			attribute.String("testsuite.group", g.Name),
			attribute.Int("testsuite.cases", g.Cases),
		))
}

// OnCaseStart implements engine.Listener.
func (l *Listener) OnCaseStart(c *engine.CaseInfo) {
	_, l.caseSpan = l.tracer.Start(l.groupCtx, c.FullName(),
		trace.WithAttributes(
			attribute.String("testsuite.group", c.Group),
			attribute.String("testsuite.case", c.Name),
		))
}

// OnCaseEnd implements engine.Listener.
func (l *Listener) OnCaseEnd(c *engine.CaseInfo) {
	if l.caseSpan == nil {
		return
	}
	l.caseSpan.SetAttributes(
		attribute.String("testsuite.outcome", string(c.Outcome())),
		attribute.Float64("testsuite.duration_seconds", c.Duration().Seconds()),
	)
	if failures := c.Failures(); len(failures) > 0 {
		l.caseSpan.SetStatus(codes.Error, failures[0].Message)
		for _, f := range failures {
			l.caseSpan.AddEvent("failure", trace.WithAttributes(
				attribute.String("message", f.String()),
			))
		}
	}
	l.caseSpan.End()
	l.caseSpan = nil
}

// OnGroupEnd implements engine.Listener.
func (l *Listener) OnGroupEnd(g *engine.GroupInfo) {
	if l.groupSpan == nil {
		return
	}
	if g.Failed() {
		l.groupSpan.SetStatus(codes.Error, "group failed")
	}
	l.groupSpan.End()
	l.groupSpan = nil
	l.groupCtx = context.Background()
}

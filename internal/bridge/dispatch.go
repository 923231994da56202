package bridge

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"github.com/mil-ad/pmbridge/internal/infra/metrics"
	"github.com/mil-ad/pmbridge/internal/infra/tracer"
	"github.com/mil-ad/pmbridge/internal/protocol"
)

// handler runs one command. It returns the terminal response, or an error:
// a protocol error becomes an error message, an abandoned command produces
// nothing.
type handler func(ctx context.Context, cmd protocol.Command) (protocol.Message, error)

func (b *Bridge) handlerTable() map[string]handler {
	return map[string]handler{
		"version":      b.version,
		"parse":        b.parse,
		"connect":      b.connect,
		"disconnect":   b.disconnect,
		"status":       b.status,
		"info":         b.info,
		"monitor":      b.monitor,
		"statistics":   b.statistics,
		"fgstatistics": b.fgStatistics,
		"logfiles":     b.logFiles,
		"readlog":      b.readLog,
		"stream":       b.stream,
	}
}

// Dispatch runs cmd and returns its response; nil means the command was
// abandoned.
func (b *Bridge) Dispatch(ctx context.Context, cmd protocol.Command) protocol.Message {
	h, ok := b.handlers[cmd.Name]
	label := cmd.Name
	if !ok {
		label = "unknown"
	}

	ctx, span := tracer.StartSpan(ctx, "command."+label, trace.WithAttributes(
		tracer.StringAttr("command.id", cmd.ID),
		tracer.StringAttr("command.name", cmd.Name),
	))
	defer span.End()

	if !ok {
		b.metrics.RecordCommand(label, metrics.OutcomeError)
		tracer.RecordError(span, ErrUnknownCommand)
		return protocol.NewError(cmd.ID, ErrUnknownCommand.Error())
	}

	log := b.log.With("id", cmd.ID, "command", cmd.Name)
	log.Debug("dispatch", "args", cmd.Args)

	msg, err := h(ctx, cmd)
	switch {
	case err != nil && abandoned(err):
		log.Info("command abandoned", "err", err)
		b.metrics.RecordCommand(label, metrics.OutcomeAbandoned)
		tracer.RecordError(span, err)
		return nil
	case err != nil:
		log.Debug("command rejected", "err", err)
		b.metrics.RecordCommand(label, metrics.OutcomeError)
		tracer.RecordError(span, err)
		return protocol.NewError(cmd.ID, err.Error())
	}

	outcome := metrics.OutcomeOK
	if r, ok := msg.(protocol.Result); ok {
		span.SetAttributes(tracer.IntAttr("code", r.Code))
		if !r.Success {
			outcome = metrics.OutcomeFailed
		}
	}
	b.metrics.RecordCommand(label, outcome)
	tracer.SetOK(span)
	return msg
}

package order

import (
	"context"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xenking/kart-commerce/internal/domain/errs"
)

const instrumentationName = "github.com/xenking/kart-commerce/internal/domain/order"

type metrics struct {
	placed    metric.Int64Counter
	cancelled metric.Int64Counter
	rejected  metric.Int64Counter
	amount    metric.Float64Histogram
}

func newMetrics(mp metric.MeterProvider) (*metrics, error) {
	meter := mp.Meter(instrumentationName)

	var (
		m   metrics
		err error
	)
	if m.placed, err = meter.Int64Counter("kart.orders.placed",
		metric.WithDescription("Orders placed successfully"),
	); err != nil {
		return nil, errors.Wrap(err, "placed counter")
	}
	if m.cancelled, err = meter.Int64Counter("kart.orders.cancelled",
		metric.WithDescription("Orders cancelled"),
	); err != nil {
		return nil, errors.Wrap(err, "cancelled counter")
	}
	if m.rejected, err = meter.Int64Counter("kart.orders.rejected",
		metric.WithDescription("Order placements rejected, by error code"),
	); err != nil {
		return nil, errors.Wrap(err, "rejected counter")
	}
	if m.amount, err = meter.Float64Histogram("kart.orders.final_amount",
		metric.WithDescription("Final amount of placed orders"),
	); err != nil {
		return nil, errors.Wrap(err, "amount histogram")
	}
	return &m, nil
}

func (m *metrics) recordPlaced(ctx context.Context, source string, o *Order) {
	attrs := metric.WithAttributes(attribute.String("source", source))
	m.placed.Add(ctx, 1, attrs)
	m.amount.Record(ctx, o.FinalAmount.InexactFloat64(), attrs)
}

func (m *metrics) recordRejected(ctx context.Context, source string, err error) {
	m.rejected.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source),
		attribute.String("reason", errs.CodeOf(err)),
	))
}

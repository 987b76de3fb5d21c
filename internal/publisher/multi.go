package publisher

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/Checker-Finance/tcg-pricing/internal/metrics"
)

// Multi fans an event out to every configured notifier. Delivery is best
// effort: a failing transport is logged and counted, the others still run.
type Multi struct {
	notifiers []Notifier
	logger    *zap.Logger
}

func NewMulti(logger *zap.Logger, notifiers ...Notifier) *Multi {
	var live []Notifier
	for _, n := range notifiers {
		if n != nil {
			live = append(live, n)
		}
	}
	return &Multi{notifiers: live, logger: logger}
}

func (m *Multi) Len() int { return len(m.notifiers) }

func (m *Multi) PublishPriceUpdated(ctx context.Context, ev PriceUpdated) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.PublishPriceUpdated(ctx, ev); err != nil {
			metrics.IncNotifyError(n.Name())
			m.logger.Warn("publisher.notify_failed",
				zap.String("transport", n.Name()),
				zap.String("game", string(ev.Game)),
				zap.String("item_key", ev.ItemKey),
				zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) Close() error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

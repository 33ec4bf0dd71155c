package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/kevin07696/checkout-aggregator/internal/domain/models"
	"github.com/kevin07696/checkout-aggregator/internal/domain/ports"
	"github.com/kevin07696/checkout-aggregator/pkg/observability"
)

// Dispatcher fans out the post-success side effects: admin notification and
// durable archive. It is invoked at most once per transaction - the caller
// guards invocation with the store-level dispatched flag - and its failures
// never propagate back into the payment lifecycle. A failed notify or
// archive is logged and counted, not retried.
type Dispatcher struct {
	notifier ports.Notifier
	archiver ports.Archiver
	logger   ports.Logger
	timeout  time.Duration
	wg       sync.WaitGroup
}

// NewDispatcher creates a new side-effect dispatcher
func NewDispatcher(notifier ports.Notifier, archiver ports.Archiver, logger ports.Logger, timeout time.Duration) *Dispatcher {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Dispatcher{
		notifier: notifier,
		archiver: archiver,
		logger:   logger,
		timeout:  timeout,
	}
}

// OnSuccess runs both side effects in the background and returns immediately
// so the triggering request can respond as soon as the state transition is
// durable. The effects run detached from the request context: a client
// disconnect must not cancel them.
func (d *Dispatcher) OnSuccess(snap models.Snapshot) {
	observability.RecordSideEffectDispatch(string(snap.Provider))

	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		d.run("notify", snap, d.notifier.Notify)
	}()
	go func() {
		defer d.wg.Done()
		d.run("archive", snap, d.archiver.Archive)
	}()
}

// Wait blocks until all in-flight side effects finish. Used by graceful
// shutdown and tests.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) run(effect string, snap models.Snapshot, fn func(context.Context, models.Snapshot) error) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := fn(ctx, snap); err != nil {
		observability.RecordSideEffectFailure(effect)
		d.logger.Error("side effect failed",
			ports.String("effect", effect),
			ports.String("transaction_id", snap.TransactionID),
			ports.Err(err))
		return
	}

	d.logger.Debug("side effect completed",
		ports.String("effect", effect),
		ports.String("transaction_id", snap.TransactionID))
}

// Package driver issues a bounded, strictly sequential stream of
// transactions against a node and observes each attempt.
package driver

import (
	"context"
	"errors"
	"iter"
	"sync/atomic"
	"time"

	"github.com/ethpandaops/minibench/pkg/node"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Attempt is the observed outcome of one transaction request.
type Attempt struct {
	// Index is the 0-based position of the attempt within its run.
	Index int
	// Latency is the wall-clock round trip, recorded whatever the outcome.
	Latency time.Duration
	// MiningTime is the server-reported mining time in seconds; zero when
	// the transaction was batched into a block already in progress.
	MiningTime float64
	Succeeded  bool
	StatusCode int
	Message    string
	// Err is set for failed attempts.
	Err error
}

// LatencySeconds returns Latency in seconds.
func (a Attempt) LatencySeconds() float64 {
	return a.Latency.Seconds()
}

// Transactor submits transactions. node.Client satisfies it.
type Transactor interface {
	CreateTransaction(ctx context.Context, receiver, amount int) (*node.TransactionResult, error)
}

// Options for a single run.
type Options struct {
	Receiver int
	Amount   int
	Count    int
	// MaxRate caps attempts per second. Zero disables pacing. Pacing only
	// delays the next request; requests never overlap.
	MaxRate float64
}

// Driver runs transaction attempts against a node.
type Driver struct {
	log     logrus.FieldLogger
	tx      Transactor
	opts    Options
	limiter *rate.Limiter
}

// New creates a new driver.
func New(log logrus.FieldLogger, tx Transactor, opts Options) *Driver {
	d := &Driver{
		log:  log.WithField("component", "driver"),
		tx:   tx,
		opts: opts,
	}

	if opts.MaxRate > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(opts.MaxRate), 1)
	}

	return d
}

// Run returns the lazy attempt sequence for one run. Each attempt is issued
// only when the consumer asks for the next value, and the sequence ends
// after the first failed attempt or after Count attempts. The sequence can
// be consumed once.
func (d *Driver) Run(ctx context.Context) iter.Seq[Attempt] {
	return Sequence(d.opts.Count, func(i int) (Attempt, bool) {
		if i == 0 {
			d.log.WithFields(logrus.Fields{
				"receiver": d.opts.Receiver,
				"amount":   d.opts.Amount,
				"count":    d.opts.Count,
			}).Info("Starting run")
		}

		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				d.log.WithError(err).Warn("Pacing interrupted, stopping run")

				return Attempt{}, false
			}
		}

		return d.attempt(ctx, i), true
	})
}

// attempt issues and observes a single transaction request.
func (d *Driver) attempt(ctx context.Context, index int) Attempt {
	start := time.Now()
	res, err := d.tx.CreateTransaction(ctx, d.opts.Receiver, d.opts.Amount)

	a := Attempt{
		Index:   index,
		Latency: time.Since(start),
	}

	log := d.log.WithFields(logrus.Fields{
		"tx":      index + 1,
		"of":      d.opts.Count,
		"latency": a.Latency,
	})

	if err != nil {
		a.Err = err

		var perr *node.ProtocolError
		if errors.As(err, &perr) {
			a.StatusCode = perr.StatusCode
			a.Message = perr.Message
		}

		log.WithError(err).WithField("status", a.StatusCode).
			Warn("Transaction failed, stopping run")

		return a
	}

	a.Succeeded = true
	a.StatusCode = res.StatusCode
	a.Message = res.Message
	a.MiningTime = res.MiningTime

	log.WithFields(logrus.Fields{
		"status":      res.StatusCode,
		"msg":         res.Message,
		"mining_time": a.MiningTime,
		"server_time": res.ServerTime,
	}).Info("Transaction completed")

	return a
}

// Sequence yields next(0), next(1), ... up to n attempts. It stops after
// yielding the first attempt that did not succeed, or earlier when next
// reports that no attempt was made. The returned sequence is single-use; a
// second range over it yields nothing.
func Sequence(n int, next func(index int) (Attempt, bool)) iter.Seq[Attempt] {
	var consumed atomic.Bool

	return func(yield func(Attempt) bool) {
		if consumed.Swap(true) {
			return
		}

		for i := 0; i < n; i++ {
			a, ok := next(i)
			if !ok {
				return
			}

			if !yield(a) || !a.Succeeded {
				return
			}
		}
	}
}

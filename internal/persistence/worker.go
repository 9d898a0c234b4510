package persistence

import (
	"context"
	"database/sql"
	"time"

	"SynthLoans/internal/fixed"
	"SynthLoans/internal/loan"
	"SynthLoans/internal/observability"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type loanKey struct {
	EngineID string
	Account  uuid.UUID
	LoanID   uint64
}

type aggregateRowKey struct {
	Currency string
	IsShort  bool
}

type update struct {
	loan      *LoanRow
	aggregate *AggregateRow
}

// Worker is the write-behind persistence goroutine. Engines and the
// manager enqueue committed state from under the ledger lock; the
// worker batches, coalesces to latest-per-key, and upserts to Postgres
// in one transaction per flush.
//
// Enqueue blocks when the buffer is full: if Postgres falls far enough
// behind, the ledger stalls rather than lose durable state.
type Worker struct {
	writer       *Writer
	queue        chan update
	batchSize    int
	flushTimeout time.Duration
	metrics      *observability.Metrics
	log          zerolog.Logger
}

func NewWorker(db *sql.DB, queueSize, batchSize int, flushTimeout time.Duration, metrics *observability.Metrics, log zerolog.Logger) *Worker {
	return &Worker{
		writer:       NewWriter(db),
		queue:        make(chan update, queueSize),
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		metrics:      metrics,
		log:          log,
	}
}

// EnqueueLoan implements the engines' loan sink.
func (w *Worker) EnqueueLoan(engineID string, l *loan.Loan) {
	row := NewLoanRow(engineID, l)
	w.queue <- update{loan: &row}
	if w.metrics != nil {
		w.metrics.PersistQueueSize.Set(float64(len(w.queue)))
	}
}

// EnqueueAggregate implements the manager's aggregate sink.
func (w *Worker) EnqueueAggregate(currency string, isShort bool, amount fixed.Dec) {
	w.queue <- update{aggregate: &AggregateRow{
		Currency: currency,
		IsShort:  isShort,
		Amount:   amount.RawString(),
	}}
	if w.metrics != nil {
		w.metrics.PersistQueueSize.Set(float64(len(w.queue)))
	}
}

// Run drains the queue until the context is cancelled, flushing when a
// batch fills or the flush timeout expires. A final flush runs on
// shutdown.
func (w *Worker) Run(ctx context.Context) error {
	loans := make(map[loanKey]LoanRow)
	aggregates := make(map[aggregateRowKey]AggregateRow)

	timer := time.NewTimer(w.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if len(loans)+len(aggregates) > 0 {
				if err := w.flush(context.Background(), loans, aggregates); err != nil {
					w.log.Error().Err(err).Msg("final persistence flush failed")
				}
			}
			return ctx.Err()

		case u := <-w.queue:
			if u.loan != nil {
				loans[loanKey{u.loan.EngineID, u.loan.Account, u.loan.LoanID}] = *u.loan
			}
			if u.aggregate != nil {
				aggregates[aggregateRowKey{u.aggregate.Currency, u.aggregate.IsShort}] = *u.aggregate
			}

			if len(loans)+len(aggregates) >= w.batchSize {
				w.flushWithRetry(ctx, loans, aggregates)
				loans = make(map[loanKey]LoanRow)
				aggregates = make(map[aggregateRowKey]AggregateRow)
				timer.Reset(w.flushTimeout)
			}

		case <-timer.C:
			if len(loans)+len(aggregates) > 0 {
				w.flushWithRetry(ctx, loans, aggregates)
				loans = make(map[loanKey]LoanRow)
				aggregates = make(map[aggregateRowKey]AggregateRow)
			}
			timer.Reset(w.flushTimeout)
		}
	}
}

// flushWithRetry retries with exponential backoff until the write
// succeeds or the context is cancelled; upserts are latest-state, so a
// retried batch never corrupts anything.
func (w *Worker) flushWithRetry(ctx context.Context, loans map[loanKey]LoanRow, aggregates map[aggregateRowKey]AggregateRow) {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			w.log.Warn().Int("attempt", attempt).Dur("backoff", backoff).
				Int("loans", len(loans)).Int("aggregates", len(aggregates)).
				Msg("persistence flush retry")
			select {
			case <-ctx.Done():
				if err := w.flush(context.Background(), loans, aggregates); err != nil {
					w.log.Error().Err(err).Msg("flush on shutdown failed")
				}
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		if err := w.flush(ctx, loans, aggregates); err == nil {
			if attempt > 0 {
				w.log.Info().Int("attempts", attempt).Msg("persistence flush recovered")
			}
			return
		}
	}
}

func (w *Worker) flush(ctx context.Context, loans map[loanKey]LoanRow, aggregates map[aggregateRowKey]AggregateRow) error {
	start := time.Now()

	loanRows := make([]LoanRow, 0, len(loans))
	for _, r := range loans {
		loanRows = append(loanRows, r)
	}
	aggregateRows := make([]AggregateRow, 0, len(aggregates))
	for _, r := range aggregates {
		aggregateRows = append(aggregateRows, r)
	}

	tx, err := w.writer.db.BeginTx(ctx, nil)
	if err != nil {
		w.countError("tx_begin")
		return err
	}
	defer tx.Rollback()

	if err := w.writer.UpsertLoans(ctx, tx, loanRows); err != nil {
		w.countError("loans")
		return err
	}
	if err := w.writer.UpsertAggregates(ctx, tx, aggregateRows); err != nil {
		w.countError("aggregates")
		return err
	}
	if err := tx.Commit(); err != nil {
		w.countError("tx_commit")
		return err
	}

	if w.metrics != nil {
		w.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
		w.metrics.PersistRowsWritten.WithLabelValues("loans").Add(float64(len(loanRows)))
		w.metrics.PersistRowsWritten.WithLabelValues("aggregates").Add(float64(len(aggregateRows)))
		w.metrics.PersistQueueSize.Set(float64(len(w.queue)))
	}
	return nil
}

func (w *Worker) countError(stage string) {
	if w.metrics != nil {
		w.metrics.PersistErrors.WithLabelValues(stage).Inc()
	}
}

package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmehra2102/checkout-orchestrator/internal/order/domain"
	"github.com/dmehra2102/checkout-orchestrator/internal/platform/postgres"
	"github.com/dmehra2102/checkout-orchestrator/pkg/outbox"
	"github.com/dmehra2102/checkout-orchestrator/pkg/tracing"
)

type OutboxStore struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewOutboxStore(log *slog.Logger, pool *pgxpool.Pool) *OutboxStore {
	return &OutboxStore{log: log, pool: pool}
}

// LockBatch claims pending events, and in-progress events whose lease ran out
// because their relay died.
func (s *OutboxStore) LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]outbox.Event, error) {
	var events []outbox.Event
	err := postgres.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT id, aggregate_type, aggregate_id, type, payload, headers, traceparent, created_at, retry_count
			FROM outbox
			WHERE status = 'pending' OR (status = 'in_progress' AND lease_until < now())
			ORDER BY id
			FOR UPDATE SKIP LOCKED
			LIMIT $1
		`, batchSize)
		if err != nil {
			return fmt.Errorf("select outbox batch: %w", err)
		}
		events, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (outbox.Event, error) {
			var e outbox.Event
			err := row.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.Type, &e.Payload, &e.Headers,
				&e.Traceparent, &e.CreatedAt, &e.RetryCount)
			return e, err
		})
		if err != nil {
			return fmt.Errorf("scan outbox batch: %w", err)
		}
		if len(events) == 0 {
			return nil
		}

		ids := make([]int64, 0, len(events))
		for i := range events {
			events[i].Status = outbox.StatusInProgress
			events[i].RelayID = relayID
			ids = append(ids, events[i].ID)
		}
		_, err = tx.Exec(ctx, `UPDATE outbox
			SET status = 'in_progress', relay_id = $1, lease_until = now() + make_interval(secs => $2)
			WHERE id = ANY($3)`, relayID, lease.Seconds(), ids)
		if err != nil {
			return fmt.Errorf("lease outbox batch: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (s *OutboxStore) MarkSent(ctx context.Context, ids []int64) error {
	_, err := s.pool.Exec(ctx, `UPDATE outbox SET status = 'sent', lease_until = NULL WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("mark outbox sent: %w", err)
	}
	return nil
}

// MarkFailed returns the event to pending for another try, or parks it as
// failed once it has used up outbox.MaxRetries.
func (s *OutboxStore) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	_, err := s.pool.Exec(ctx, `UPDATE outbox
		SET retry_count = retry_count + 1,
			last_error = $2,
			lease_until = NULL,
			status = CASE WHEN retry_count + 1 >= $3 THEN 'failed' ELSE 'pending' END
		WHERE id = $1`, id, errMsg, outbox.MaxRetries)
	if err != nil {
		return fmt.Errorf("mark outbox failed: %w", err)
	}
	return nil
}

// Enqueue writes an event row through q so it commits or rolls back with the
// caller's other writes.
func Enqueue(ctx context.Context, q postgres.Querier, e outbox.Event) error {
	headers := e.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	_, err := q.Exec(ctx, `INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, headers, traceparent, status)
		VALUES ($1,$2,$3,$4,$5,$6,'pending')`,
		e.AggregateType, e.AggregateID, e.Type, e.Payload, headers, e.Traceparent)
	if err != nil {
		return fmt.Errorf("enqueue outbox event: %w", err)
	}
	return nil
}

// EventPublisher publishes order events by writing them to the outbox; the
// relay ships them to Kafka.
type EventPublisher struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewEventPublisher(log *slog.Logger, pool *pgxpool.Pool) *EventPublisher {
	return &EventPublisher{log: log, pool: pool}
}

func (p *EventPublisher) Publish(ctx context.Context, ev domain.OrderCreated) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", domain.EventOrderCreated, err)
	}
	return Enqueue(ctx, p.pool, outbox.Event{
		AggregateType: "order",
		AggregateID:   ev.OrderID,
		Type:          domain.EventOrderCreated,
		Payload:       payload,
		Headers:       map[string]string{"user_id": ev.UserID},
		Traceparent:   tracing.Traceparent(ctx),
	})
}

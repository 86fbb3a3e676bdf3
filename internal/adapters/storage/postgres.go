package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/athebyme/listing-cloner/internal/domain/models"
	"github.com/athebyme/listing-cloner/pkg/tx"
	"github.com/athebyme/listing-cloner/pkg/utils"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrBatchNotFound возвращается, если в журнале нет партии с таким ID
var ErrBatchNotFound = errors.New("batch not found")

const schemaDDL = `
	CREATE SCHEMA IF NOT EXISTS cloner;

	CREATE TABLE IF NOT EXISTS cloner.batches (
		id          TEXT PRIMARY KEY,
		drafted     INT NOT NULL DEFAULT 0,
		skipped     INT NOT NULL DEFAULT 0,
		published   INT NOT NULL DEFAULT 0,
		failed      INT NOT NULL DEFAULT 0,
		operator    TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS cloner.batch_events (
		id                TEXT PRIMARY KEY,
		batch_id          TEXT NOT NULL REFERENCES cloner.batches (id),
		type              TEXT NOT NULL,
		source_listing_id TEXT NOT NULL DEFAULT '',
		draft_id          TEXT NOT NULL DEFAULT '',
		status            TEXT NOT NULL DEFAULT '',
		message           TEXT NOT NULL DEFAULT '',
		operator          TEXT NOT NULL DEFAULT '',
		occurred_at       TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS batch_events_batch_id_idx
		ON cloner.batch_events (batch_id, occurred_at);
`

// BatchSummary агрегированные счетчики партии
type BatchSummary struct {
	ID        string    `json:"batch_id"`
	Drafted   int       `json:"drafted"`
	Skipped   int       `json:"skipped"`
	Published int       `json:"published"`
	Failed    int       `json:"failed"`
	Operator  string    `json:"operator,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JournalStorage журнал событий клонирования в PostgreSQL
type JournalStorage struct {
	pool      *pgxpool.Pool
	txManager tx.TxManager
}

// NewPostgresStorage подключается к БД по строке соединения
func NewPostgresStorage(ctx context.Context, connectionString string, poolSize int) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}
	if poolSize > 0 {
		cfg.MaxConns = int32(poolSize)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return pool, nil
}

// NewJournalStorage создает журнал поверх готового пула
func NewJournalStorage(ctx context.Context, pool *pgxpool.Pool, txManager tx.TxManager) (*JournalStorage, error) {
	if pool == nil {
		return nil, errors.New("pool is nil")
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return &JournalStorage{pool: pool, txManager: txManager}, nil
}

// Ping проверяет доступность БД
func (s *JournalStorage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close закрывает соединение с БД
func (s *JournalStorage) Close() error {
	s.pool.Close()
	return nil
}

type executor interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// getExecutor возвращает транзакцию из контекста или пул
func (s *JournalStorage) getExecutor(ctx context.Context) executor {
	if t, ok := tx.GetTxFromContext(ctx); ok {
		return t
	}
	return s.pool
}

// EnsureSchema создает схему журнала, если её нет
func (s *JournalStorage) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("failed to create journal schema: %w", err)
	}
	return nil
}

// RecordEvent сохраняет событие и обновляет счетчики партии в одной транзакции.
// Повторная доставка того же события ничего не меняет
func (s *JournalStorage) RecordEvent(ctx context.Context, event *models.CloneEvent) error {
	return s.txManager.Do(ctx, func(ctx context.Context) error {
		e := s.getExecutor(ctx)

		_, err := e.Exec(ctx, `
			INSERT INTO cloner.batches (id, operator, created_at, updated_at)
			VALUES ($1, $2, $3, $3)
			ON CONFLICT (id) DO NOTHING
		`, event.BatchID, event.Operator, event.OccurredAt)
		if err != nil {
			return fmt.Errorf("failed to upsert batch: %w", err)
		}

		tag, err := e.Exec(ctx, `
			INSERT INTO cloner.batch_events
				(id, batch_id, type, source_listing_id, draft_id, status, message, operator, occurred_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO NOTHING
		`, event.ID, event.BatchID, event.Type, event.SourceListingID, event.DraftID,
			string(event.Status), event.Message, event.Operator, event.OccurredAt)
		if err != nil {
			return fmt.Errorf("failed to save event: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}

		column := counterColumn(event)
		if column == "" {
			_, err = e.Exec(ctx, `UPDATE cloner.batches SET updated_at = $2 WHERE id = $1`,
				event.BatchID, event.OccurredAt)
		} else {
			_, err = e.Exec(ctx, fmt.Sprintf(
				`UPDATE cloner.batches SET %[1]s = %[1]s + 1, updated_at = $2 WHERE id = $1`, column),
				event.BatchID, event.OccurredAt)
		}
		if err != nil {
			return fmt.Errorf("failed to update batch counters: %w", err)
		}
		return nil
	})
}

// counterColumn выбирает счетчик партии для события
func counterColumn(event *models.CloneEvent) string {
	switch event.Type {
	case models.DraftCreatedEvent:
		return "drafted"
	case models.DraftSkippedEvent:
		return "skipped"
	case models.ListingPublishedEvent:
		return "published"
	case models.ListingPublishFailedEvent:
		return "failed"
	}
	return ""
}

// GetBatchSummary возвращает счетчики партии
func (s *JournalStorage) GetBatchSummary(ctx context.Context, batchID string) (*BatchSummary, error) {
	var b BatchSummary
	err := s.getExecutor(ctx).QueryRow(ctx, `
		SELECT id, drafted, skipped, published, failed, operator, created_at, updated_at
		FROM cloner.batches
		WHERE id = $1
	`, batchID).Scan(&b.ID, &b.Drafted, &b.Skipped, &b.Published, &b.Failed, &b.Operator, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBatchNotFound
		}
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}
	return &b, nil
}

// ListBatchEvents возвращает события партии в порядке возникновения
func (s *JournalStorage) ListBatchEvents(ctx context.Context, batchID string, p *utils.Pagination) ([]*models.CloneEvent, error) {
	e := s.getExecutor(ctx)

	var total int64
	if err := e.QueryRow(ctx, `SELECT COUNT(*) FROM cloner.batch_events WHERE batch_id = $1`, batchID).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}
	p.SetTotal(total)

	if total == 0 {
		return []*models.CloneEvent{}, nil
	}

	rows, err := e.Query(ctx, `
		SELECT id, batch_id, type, source_listing_id, draft_id, status, message, operator, occurred_at
		FROM cloner.batch_events
		WHERE batch_id = $1
		ORDER BY occurred_at, id
		LIMIT $2 OFFSET $3
	`, batchID, p.GetLimit(), p.GetOffset())
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	events := make([]*models.CloneEvent, 0, p.GetLimit())
	for rows.Next() {
		var ev models.CloneEvent
		var status string
		if err := rows.Scan(&ev.ID, &ev.BatchID, &ev.Type, &ev.SourceListingID, &ev.DraftID,
			&status, &ev.Message, &ev.Operator, &ev.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		ev.Status = models.ItemStatus(status)
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}

	return events, nil
}

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/suture/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store provides a PostgreSQL implementation of schemas.Store.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

var _ schemas.Store = (*Store)(nil)

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS campaigns (
    id             UUID PRIMARY KEY,
    mode           TEXT NOT NULL,
    selector       TEXT NOT NULL,
    scope          TEXT NOT NULL,
    strategy       TEXT NOT NULL,
    started_at     TIMESTAMPTZ NOT NULL,
    init_ended_at  TIMESTAMPTZ,
    ended_at       TIMESTAMPTZ,
    target         INTEGER NOT NULL,
    collected      INTEGER NOT NULL,
    passed         INTEGER NOT NULL,
    failed         INTEGER NOT NULL,
    errored        INTEGER NOT NULL,
    abandoned      BOOLEAN NOT NULL,
    stop_reason    TEXT NOT NULL,
    candidates     JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS attempts (
    campaign_id  UUID NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
    seq          INTEGER NOT NULL,
    outcome      TEXT NOT NULL,
    error        TEXT,
    tests        TEXT[],
    started_at   TIMESTAMPTZ,
    ended_at     TIMESTAMPTZ,
    PRIMARY KEY (campaign_id, seq)
);
CREATE TABLE IF NOT EXISTS decisions (
    campaign_id  UUID NOT NULL,
    attempt_seq  INTEGER NOT NULL,
    seq          INTEGER NOT NULL,
    site         TEXT NOT NULL,
    strategy     TEXT NOT NULL,
    action       TEXT NOT NULL,
    value        TEXT,
    PRIMARY KEY (campaign_id, attempt_seq, seq),
    FOREIGN KEY (campaign_id, attempt_seq) REFERENCES attempts(campaign_id, seq) ON DELETE CASCADE
);
CREATE TABLE IF NOT EXISTS search_space (
    campaign_id  UUID NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
    seq          INTEGER NOT NULL,
    site         TEXT NOT NULL,
    strategy     TEXT NOT NULL,
    action       TEXT NOT NULL,
    value        TEXT,
    PRIMARY KEY (campaign_id, seq)
);
`

// EnsureSchema creates the campaign tables when they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

const sqlInsertCampaign = `
    INSERT INTO campaigns (id, mode, selector, scope, strategy, started_at, init_ended_at, ended_at,
        target, collected, passed, failed, errored, abandoned, stop_reason, candidates)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
`

// PersistCampaign writes a finished campaign in one transaction.
func (s *Store) PersistCampaign(ctx context.Context, report *schemas.CampaignReport) error {
	if report == nil {
		return fmt.Errorf("cannot persist a nil campaign report")
	}
	candidates, err := json.Marshal(report.Candidates)
	if err != nil {
		return fmt.Errorf("failed to encode candidates: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	sum := report.Summary
	if _, err := tx.Exec(ctx, sqlInsertCampaign,
		report.ID, report.Mode, report.Selector, report.Scope, report.Strategy,
		report.Start.UTC(), nullableTime(report.EndInit), nullableTime(report.End),
		report.Target, sum.Collected, sum.Passed, sum.Failed, sum.Errored, sum.Abandoned,
		string(sum.StopReason), candidates,
	); err != nil {
		return fmt.Errorf("failed to insert campaign: %w", err)
	}

	if err := s.persistAttempts(ctx, tx, report.ID, report.Attempts); err != nil {
		return err
	}
	if err := s.persistSearchSpace(ctx, tx, report.ID, report.SearchSpace); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Info("Campaign persisted.",
		zap.String("campaign_id", report.ID),
		zap.Int("attempts", len(report.Attempts)),
		zap.Int("search_space", len(report.SearchSpace)))
	return nil
}

func (s *Store) persistAttempts(ctx context.Context, tx pgx.Tx, campaignID string, attempts []schemas.Attempt) error {
	if len(attempts) == 0 {
		return nil
	}
	rows := make([][]any, len(attempts))
	var decisionRows [][]any
	for i, a := range attempts {
		rows[i] = []any{
			campaignID, i, string(a.Oracle.Outcome), a.Oracle.Error, a.Tests,
			nullableTime(a.Start), nullableTime(a.End),
		}
		for j, d := range a.Decisions {
			decisionRows = append(decisionRows, []any{campaignID, i, j, d.Site, d.Strategy, string(d.Action), d.Value})
		}
	}

	if err := copyRows(ctx, tx, "attempts",
		[]string{"campaign_id", "seq", "outcome", "error", "tests", "started_at", "ended_at"}, rows); err != nil {
		return err
	}
	if len(decisionRows) == 0 {
		return nil
	}
	return copyRows(ctx, tx, "decisions",
		[]string{"campaign_id", "attempt_seq", "seq", "site", "strategy", "action", "value"}, decisionRows)
}

func (s *Store) persistSearchSpace(ctx context.Context, tx pgx.Tx, campaignID string, space []schemas.Decision) error {
	if len(space) == 0 {
		return nil
	}
	rows := make([][]any, len(space))
	for i, d := range space {
		rows[i] = []any{campaignID, i, d.Site, d.Strategy, string(d.Action), d.Value}
	}
	return copyRows(ctx, tx, "search_space",
		[]string{"campaign_id", "seq", "site", "strategy", "action", "value"}, rows)
}

func copyRows(ctx context.Context, tx pgx.Tx, table string, columns []string, rows [][]any) error {
	copyCount, err := tx.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy %s: %w", table, err)
	}
	if int(copyCount) != len(rows) {
		return fmt.Errorf("mismatch in copied %s count: expected %d, got %d", table, len(rows), copyCount)
	}
	return nil
}

// nullableTime maps the zero time to SQL NULL and everything else to UTC.
func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

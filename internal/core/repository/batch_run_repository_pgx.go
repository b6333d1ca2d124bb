package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/duynhne/group-admin-service/internal/core/domain"
)

const batchRunsSchema = `
CREATE TABLE IF NOT EXISTS batch_runs (
	id                     BIGSERIAL PRIMARY KEY,
	session_id             TEXT        NOT NULL,
	account_fingerprint    TEXT        NOT NULL,
	group_id               TEXT        NOT NULL,
	requested_group_name   TEXT,
	requested_nickname     TEXT,
	group_name_changed     BOOLEAN     NOT NULL,
	nickname_success_count INTEGER     NOT NULL,
	nickname_failure_count INTEGER     NOT NULL,
	members_targeted       INTEGER     NOT NULL,
	cancelled              BOOLEAN     NOT NULL,
	error                  TEXT        NOT NULL DEFAULT '',
	started_at             TIMESTAMPTZ NOT NULL,
	finished_at            TIMESTAMPTZ NOT NULL
)`

// PgxBatchRunRepository implements domain.BatchRunRepository using pgxpool.
type PgxBatchRunRepository struct {
	pool *pgxpool.Pool
}

// NewBatchRunRepository creates a new PgxBatchRunRepository.
func NewBatchRunRepository(pool *pgxpool.Pool) *PgxBatchRunRepository {
	return &PgxBatchRunRepository{pool: pool}
}

// EnsureSchema creates the batch_runs table when it does not exist yet.
func (r *PgxBatchRunRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, batchRunsSchema)
	return err
}

// Record inserts one batch run.
func (r *PgxBatchRunRepository) Record(ctx context.Context, run domain.BatchRun) error {
	query := `
		INSERT INTO batch_runs (
			session_id, account_fingerprint, group_id,
			requested_group_name, requested_nickname,
			group_name_changed, nickname_success_count, nickname_failure_count,
			members_targeted, cancelled, error, started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := r.pool.Exec(ctx, query,
		run.SessionID, run.AccountFingerprint, run.GroupID,
		run.RequestedGroupName, run.RequestedNickname,
		run.GroupNameChanged, run.NicknameSuccessCount, run.NicknameFailureCount,
		run.MembersTargeted, run.Cancelled, run.Error, run.StartedAt, run.FinishedAt,
	)
	return err
}

// NoopBatchRunRepository discards every run. It is used when no database is configured.
type NoopBatchRunRepository struct{}

func (NoopBatchRunRepository) Record(context.Context, domain.BatchRun) error { return nil }

// package jobrepository contains the PostgreSQL job record repository
package jobrepository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jmoiron/sqlx"

	"github.com/vishnukl-alation/hive/internal/core/ports/primary"
	"github.com/vishnukl-alation/hive/internal/core/ports/secondary"
	"github.com/vishnukl-alation/hive/internal/domain"
	querybuilder "github.com/vishnukl-alation/hive/internal/utils"
)

var _ secondary.JobRepository = (*JobRepository)(nil)

const schema = "public"

const createTableQuery = `
	CREATE TABLE IF NOT EXISTS public.remote_jobs (
		id           UUID PRIMARY KEY,
		kind         TEXT NOT NULL,
		status       TEXT NOT NULL,
		description  TEXT NOT NULL DEFAULT '',
		group_id     TEXT NOT NULL DEFAULT '',
		error        TEXT NOT NULL DEFAULT '',
		result       BYTEA,
		submitted_at TIMESTAMPTZ NOT NULL,
		started_at   TIMESTAMPTZ,
		completed_at TIMESTAMPTZ
	);
	CREATE INDEX IF NOT EXISTS remote_jobs_group_id_idx ON public.remote_jobs (group_id, submitted_at DESC);
`

// JobRepository implements the JobRepository interface with PostgreSQL
type JobRepository struct {
	db     *sqlx.DB
	logger primary.Logger
}

// NewJobRepository creates a new PostgreSQL job repository
func NewJobRepository(db *sqlx.DB, logger primary.Logger) *JobRepository {
	return &JobRepository{
		db:     db,
		logger: logger,
	}
}

// Migrate creates the remote_jobs table when it does not exist
func (r *JobRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createTableQuery); err != nil {
		r.logger.Error("Failed to migrate job table", "error", err)
		return fmt.Errorf("failed to migrate job table: %w", err)
	}
	return nil
}

func columns() []string {
	tbl := domain.GetJobRecordTable()
	return []string{
		tbl.ID,
		tbl.Kind,
		tbl.Status,
		tbl.Description,
		tbl.GroupID,
		tbl.Error,
		tbl.Result,
		tbl.SubmittedAt,
		tbl.StartedAt,
		tbl.CompletedAt,
	}
}

func buildSaveQuery(job *domain.JobRecord) (string, []interface{}) {
	tbl := domain.GetJobRecordTable()
	return querybuilder.NewQueryBuilder(schema).
		Insert(columns()...).
		Into(tbl.TableName()).
		Values(
			job.ID,
			job.Kind,
			job.Status,
			job.Description,
			job.GroupID,
			job.Error,
			job.Result,
			job.SubmittedAt,
			job.StartedAt,
			job.CompletedAt,
		).
		OnConflict(tbl.ID).
		SetExclude(
			tbl.Status,
			tbl.Error,
			tbl.Result,
			tbl.StartedAt,
			tbl.CompletedAt,
		).
		Build()
}

// SaveJob inserts a record or updates the mutable columns of an existing one
func (r *JobRepository) SaveJob(ctx context.Context, job *domain.JobRecord) error {
	query, args := buildSaveQuery(job)

	_, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		r.logger.Error("Failed to save job", "jobId", job.ID, "error", err)
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

// GetJob retrieves a record by submission ID. It returns nil when none exists.
func (r *JobRepository) GetJob(ctx context.Context, jobID uuid.UUID) (*domain.JobRecord, error) {
	tbl := domain.GetJobRecordTable()
	query, args := querybuilder.NewQueryBuilder(schema).
		Select(columns()...).
		From(tbl.TableName()).
		Where(tbl.ID+" = ?", jobID).
		Build()

	var job domain.JobRecord
	if err := r.db.GetContext(ctx, &job, r.db.Rebind(query), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get job", "jobId", jobID, "error", err)
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// GetJobsByGroup returns the newest records of a tracking group first
func (r *JobRepository) GetJobsByGroup(ctx context.Context, groupID string, limit int) ([]*domain.JobRecord, error) {
	tbl := domain.GetJobRecordTable()
	query, args := querybuilder.NewQueryBuilder(schema).
		Select(columns()...).
		From(tbl.TableName()).
		Where(tbl.GroupID+" = ?", groupID).
		OrderBy(tbl.SubmittedAt, false).
		Limit(limit).
		Build()

	jobs := make([]*domain.JobRecord, 0)
	if err := r.db.SelectContext(ctx, &jobs, r.db.Rebind(query), args...); err != nil {
		r.logger.Error("Failed to list jobs by group", "groupId", groupID, "error", err)
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

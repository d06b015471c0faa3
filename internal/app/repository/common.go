package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"

	"ai-subtitler/internal/app/model"
)

// PlaceholderFunc generates parameter placeholders for different SQL dialects
type PlaceholderFunc func(n int) string

const jobColumns = `id, user_id, file_name, file_size, file_type, file_url, language, prefer_primary,
	status, progress, eta, download_url, error, created_at, updated_at`

// SQLJobRepository implements JobRepository over database/sql for both SQLite and Postgres.
type SQLJobRepository struct {
	db           *sql.DB
	driverName   string
	placeholders PlaceholderFunc
	now          func() time.Time
}

// NewSQLJobRepository wraps an open connection. driverName selects the placeholder style.
func NewSQLJobRepository(db *sql.DB, driverName string) *SQLJobRepository {
	var placeholders PlaceholderFunc

	switch driverName {
	case "postgres":
		placeholders = func(n int) string { return fmt.Sprintf("$%d", n) }
	default:
		placeholders = func(n int) string { return "?" }
	}

	return &SQLJobRepository{
		db:           db,
		driverName:   driverName,
		placeholders: placeholders,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*model.ConversionJob, error) {
	var (
		job         model.ConversionJob
		status      string
		eta         sql.NullInt64
		downloadURL sql.NullString
		errMsg      sql.NullString
	)
	err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.FileName,
		&job.FileSize,
		&job.FileType,
		&job.FileURL,
		&job.Language,
		&job.PreferPrimary,
		&status,
		&job.Progress,
		&eta,
		&downloadURL,
		&errMsg,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Status = model.JobStatus(status)
	if eta.Valid {
		v := int(eta.Int64)
		job.ETA = &v
	}
	if downloadURL.Valid {
		job.DownloadURL = &downloadURL.String
	}
	if errMsg.Valid {
		job.Error = &errMsg.String
	}
	return &job, nil
}

func (r *SQLJobRepository) list(ctx context.Context, query string, args ...any) ([]*model.ConversionJob, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	jobs := make([]*model.ConversionJob, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return jobs, nil
}

func (r *SQLJobRepository) placeholderList(start, n int) string {
	return strings.Join(lo.Times(n, func(i int) string { return r.placeholders(start + i) }), ", ")
}

// Create inserts a new job record.
func (r *SQLJobRepository) Create(ctx context.Context, job *model.ConversionJob) (*model.ConversionJob, error) {
	if job.CreatedAt.IsZero() {
		job.CreatedAt = r.now()
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = job.CreatedAt
	}

	query := fmt.Sprintf(`INSERT INTO conversion_jobs (%s) VALUES (%s)`, jobColumns, r.placeholderList(1, 15))
	_, err := r.db.ExecContext(ctx, query,
		job.ID, job.UserID, job.FileName, job.FileSize, job.FileType, job.FileURL, job.Language, job.PreferPrimary,
		string(job.Status), job.Progress, nullInt(job.ETA), nullString(job.DownloadURL), nullString(job.Error),
		job.CreatedAt.UTC(), job.UpdatedAt.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert failed: %w", err)
	}
	return job.Clone(), nil
}

// Get loads one job by id.
func (r *SQLJobRepository) Get(ctx context.Context, id string) (*model.ConversionJob, error) {
	query := fmt.Sprintf(`SELECT %s FROM conversion_jobs WHERE id = %s`, jobColumns, r.placeholders(1))
	job, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return job, nil
}

// Update applies update to the job and returns the stored result.
func (r *SQLJobRepository) Update(ctx context.Context, id string, update model.JobUpdate) (*model.ConversionJob, error) {
	var sets []string
	var args []any
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = %s", column, r.placeholders(len(args))))
	}

	if update.Status != nil {
		add("status", string(*update.Status))
	}
	if update.Progress != nil {
		add("progress", *update.Progress)
	}
	if update.ETA != nil {
		add("eta", *update.ETA)
	} else if update.ClearETA {
		add("eta", nil)
	}
	if update.Error != nil {
		add("error", *update.Error)
	} else if update.ClearError {
		add("error", nil)
	}
	if update.DownloadURL != nil {
		add("download_url", *update.DownloadURL)
	} else if update.ClearDownloadURL {
		add("download_url", nil)
	}
	add("updated_at", r.now())
	args = append(args, id)
	where := fmt.Sprintf("id = %s", r.placeholders(len(args)))

	if update.Status != nil {
		sources := model.SourcesOf(*update.Status)
		if len(sources) == 0 {
			return nil, fmt.Errorf("%w to %s", model.ErrInvalidTransition, *update.Status)
		}
		where += fmt.Sprintf(" AND status IN (%s)", r.placeholderList(len(args)+1, len(sources)))
		for _, from := range sources {
			args = append(args, string(from))
		}
	}

	query := fmt.Sprintf(`UPDATE conversion_jobs SET %s WHERE %s`, strings.Join(sets, ", "), where)
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("update failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update failed: %w", err)
	}
	if affected == 0 {
		if update.Status == nil {
			return nil, ErrJobNotFound
		}
		current, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := model.ValidateTransition(current.Status, *update.Status); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("update failed: job %s changed status concurrently", id)
	}
	return r.Get(ctx, id)
}

// Delete removes one job record.
func (r *SQLJobRepository) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf(`DELETE FROM conversion_jobs WHERE id = %s`, r.placeholders(1))
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}
	if affected == 0 {
		return ErrJobNotFound
	}
	return nil
}

// ListByOwner returns an owner's jobs, newest first.
func (r *SQLJobRepository) ListByOwner(ctx context.Context, ownerID string, filter model.JobFilter) ([]*model.ConversionJob, error) {
	args := []any{ownerID}
	where := fmt.Sprintf("user_id = %s", r.placeholders(1))
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where += fmt.Sprintf(" AND status = %s", r.placeholders(len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit, offset)

	query := fmt.Sprintf(`SELECT %s FROM conversion_jobs WHERE %s ORDER BY created_at DESC LIMIT %s OFFSET %s`,
		jobColumns, where, r.placeholders(len(args)-1), r.placeholders(len(args)))
	return r.list(ctx, query, args...)
}

// CountByOwner counts an owner's jobs, optionally restricted to one status.
func (r *SQLJobRepository) CountByOwner(ctx context.Context, ownerID string, status model.JobStatus) (int, error) {
	args := []any{ownerID}
	query := fmt.Sprintf(`SELECT COUNT(*) FROM conversion_jobs WHERE user_id = %s`, r.placeholders(1))
	if status != "" {
		args = append(args, string(status))
		query += fmt.Sprintf(" AND status = %s", r.placeholders(2))
	}

	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("query failed: %w", err)
	}
	return count, nil
}

// ListByStatus returns jobs in the given statuses, oldest first.
func (r *SQLJobRepository) ListByStatus(ctx context.Context, statuses ...model.JobStatus) ([]*model.ConversionJob, error) {
	if len(statuses) == 0 {
		return []*model.ConversionJob{}, nil
	}
	args := lo.Map(statuses, func(s model.JobStatus, _ int) any { return string(s) })

	query := fmt.Sprintf(`SELECT %s FROM conversion_jobs WHERE status IN (%s) ORDER BY created_at ASC`,
		jobColumns, r.placeholderList(1, len(args)))
	return r.list(ctx, query, args...)
}

// DeleteTerminalBefore removes completed and failed jobs created before cutoff.
func (r *SQLJobRepository) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := lo.Map(model.TerminalStatuses, func(s model.JobStatus, _ int) any { return string(s) })
	args = append(args, cutoff.UTC())

	query := fmt.Sprintf(`DELETE FROM conversion_jobs WHERE status IN (%s) AND created_at < %s`,
		r.placeholderList(1, len(model.TerminalStatuses)), r.placeholders(len(args)))
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete failed: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database connection
func (r *SQLJobRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// DB returns the underlying database connection
func (r *SQLJobRepository) DB() *sql.DB {
	return r.db
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

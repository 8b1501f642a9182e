package persistence

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"
)

// sqlDialect captures what differs between the SQL backends.
type sqlDialect struct {
	schema []string
	// positional rewrites "?" placeholders into "$1", "$2", ...
	positional bool
}

// sqlStore implements the stores on database/sql. Each row keeps the
// columns it is queried by next to the JSON encoded record.
type sqlStore struct {
	db      *sql.DB
	dialect sqlDialect
}

func newSQLStore(db *sql.DB, d sqlDialect) (*sqlStore, error) {
	s := &sqlStore{db: db, dialect: d}
	for _, stmt := range d.schema {
		if _, err := db.Exec(stmt); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *sqlStore) q(query string) string {
	if !s.dialect.positional {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlStore) CreateJob(ctx context.Context, job *Job) error {
	data, err := encodeValue(job)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.q(`
		INSERT INTO herald_jobs (id, environment_id, transaction_id, merged_digest_id, status, created_at, data)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		job.ID,
		job.EnvironmentID,
		job.TransactionID,
		job.MergedDigestID,
		string(job.Status),
		job.CreatedAt.UnixNano(),
		data,
	)
	return err
}

func (s *sqlStore) UpdateJob(ctx context.Context, job *Job) error {
	data, err := encodeValue(job)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE herald_jobs
		SET environment_id = ?, transaction_id = ?, merged_digest_id = ?, status = ?, data = ?
		WHERE id = ?`),
		job.EnvironmentID,
		job.TransactionID,
		job.MergedDigestID,
		string(job.Status),
		data,
		job.ID,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *sqlStore) FindJob(ctx context.Context, environmentID, id string) (*Job, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT data FROM herald_jobs WHERE id = ? AND environment_id = ?`),
		id, environmentID,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	job, err := decodeValue[Job](data)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *sqlStore) FindMergedDigestJobs(ctx context.Context, environmentID, digestJobID string) ([]*Job, error) {
	return s.queryJobs(ctx, `
		SELECT data FROM herald_jobs
		WHERE environment_id = ? AND merged_digest_id = ? AND status = ?
		ORDER BY created_at, id`,
		environmentID, digestJobID, string(JobStatusMerged),
	)
}

func (s *sqlStore) ListJobs(ctx context.Context, filter JobFilter) ([]*Job, error) {
	query := `SELECT data FROM herald_jobs`
	var args []any
	var clauses []string

	if filter.EnvironmentID != "" {
		clauses = append(clauses, "environment_id = ?")
		args = append(args, filter.EnvironmentID)
	}
	if filter.TransactionID != "" {
		clauses = append(clauses, "transaction_id = ?")
		args = append(args, filter.TransactionID)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at, id"

	return s.queryJobs(ctx, query, args...)
}

func (s *sqlStore) queryJobs(ctx context.Context, query string, args ...any) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		job, err := decodeValue[Job](data)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, &job)
	}
	return jobs, rows.Err()
}

func (s *sqlStore) CreateMessage(ctx context.Context, msg *Message) error {
	data, err := encodeValue(msg)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.q(`
		INSERT INTO herald_messages (id, environment_id, job_id, data)
		VALUES (?, ?, ?, ?)`),
		msg.ID, msg.EnvironmentID, msg.JobID, data,
	)
	return err
}

func (s *sqlStore) UpdateMessage(ctx context.Context, msg *Message) error {
	data, err := encodeValue(msg)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE herald_messages SET data = ? WHERE id = ?`),
		data, msg.ID,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrMessageNotFound
	}
	return nil
}

func (s *sqlStore) FindMessageByJob(ctx context.Context, environmentID, jobID string) (*Message, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT data FROM herald_messages WHERE environment_id = ? AND job_id = ?`),
		environmentID, jobID,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	msg, err := decodeValue[Message](data)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *sqlStore) CreateExecutionDetail(ctx context.Context, d *ExecutionDetail) error {
	data, err := encodeValue(d)
	if err != nil {
		return err
	}
	createdAt := d.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err = s.db.ExecContext(ctx, s.q(`
		INSERT INTO herald_execution_details (id, environment_id, job_id, created_at, data)
		VALUES (?, ?, ?, ?, ?)`),
		d.ID, d.EnvironmentID, d.JobID, createdAt.UnixNano(), data,
	)
	return err
}

func (s *sqlStore) ListExecutionDetails(ctx context.Context, environmentID, jobID string) ([]*ExecutionDetail, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT data FROM herald_execution_details
		WHERE environment_id = ? AND job_id = ?
		ORDER BY seq`),
		environmentID, jobID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ExecutionDetail
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		d, err := decodeValue[ExecutionDetail](data)
		if err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"TrendPress/internal/domain"
	"TrendPress/internal/ports"
)

const uniqueViolation = "23505"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresStore persists records into the trends table.
type PostgresStore struct {
	db *sql.DB
}

var _ ports.RecordStore = (*PostgresStore)(nil)

// NewPostgresStore wires a sql.DB implementation.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgres connects with the pq driver and applies the schema.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := connectPostgres(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewPostgresStore(db), nil
}

// OpenPostgresReadOnly connects without touching the schema.
func OpenPostgresReadOnly(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := connectPostgres(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return NewPostgresStore(db), nil
}

func connectPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Close closes the underlying pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Insert adds a record for a new topic.
func (s *PostgresStore) Insert(ctx context.Context, record domain.Record) (domain.Record, error) {
	query, args, err := psql.Insert(tableName).
		Columns("topic_name", "last_stage", "last_stage_at", "version").
		Values(record.TopicName, nullString(string(record.LastStage)), nullTime(record.LastStageAt), 1).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return domain.Record{}, fmt.Errorf("build insert: %w", err)
	}

	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&record.ID); err != nil {
		if isUniqueViolation(err) {
			return domain.Record{}, fmt.Errorf("insert %q: %w", record.TopicName, domain.ErrDuplicateTopic)
		}
		return domain.Record{}, fmt.Errorf("insert record: %w", err)
	}
	record.Version = 1
	return record, nil
}

// Get loads a record by id.
func (s *PostgresStore) Get(ctx context.Context, id int64) (domain.Record, error) {
	query, args, err := psql.Select(recordColumns...).From(tableName).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return domain.Record{}, fmt.Errorf("build select: %w", err)
	}

	record, err := scanRecord(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return domain.Record{}, fmt.Errorf("get record %d: %w", id, err)
	}
	return record, nil
}

// List returns every record ordered by id.
func (s *PostgresStore) List(ctx context.Context) ([]domain.Record, error) {
	return s.query(ctx, psql.Select(recordColumns...).From(tableName).OrderBy("id"))
}

// QueryEligible translates the predicate into SQL conditions.
func (s *PostgresStore) QueryEligible(ctx context.Context, predicate domain.Predicate, limit int) ([]domain.Record, error) {
	return s.query(ctx, eligibleQuery(predicate, limit))
}

func eligibleQuery(predicate domain.Predicate, limit int) sq.SelectBuilder {
	builder := psql.Select(recordColumns...).
		From(tableName).
		Where(sq.Or{sq.Eq{"status": nil}, sq.NotEq{"status": string(domain.StatusPublished)}})

	for _, f := range predicate.Present {
		builder = builder.Where(presence(f, true))
	}
	for _, f := range predicate.Absent {
		builder = builder.Where(presence(f, false))
	}

	builder = builder.OrderBy("id")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	return builder
}

func presence(f domain.Field, present bool) sq.Sqlizer {
	col := string(f)
	if f.IsBool() {
		return sq.Eq{col: present}
	}
	if present {
		return sq.NotEq{col: nil}
	}
	return sq.Eq{col: nil}
}

func (s *PostgresStore) query(ctx context.Context, builder sq.SelectBuilder) ([]domain.Record, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}

	var records []domain.Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		records = append(records, record)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return records, nil
}

// Update locks the row, checks version and monotonicity, then writes.
func (s *PostgresStore) Update(ctx context.Context, record domain.Record) (domain.Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Record{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query, args, err := psql.Select(recordColumns...).
		From(tableName).
		Where(sq.Eq{"id": record.ID}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return domain.Record{}, fmt.Errorf("build select: %w", err)
	}

	current, err := scanRecord(tx.QueryRowContext(ctx, query, args...))
	if err != nil {
		return domain.Record{}, fmt.Errorf("update record %d: %w", record.ID, err)
	}
	if current.Version != record.Version {
		return domain.Record{}, fmt.Errorf("update record %d: %w: stored %d, got %d",
			record.ID, domain.ErrVersionConflict, current.Version, record.Version)
	}
	if err := domain.CheckForward(current, record); err != nil {
		return domain.Record{}, fmt.Errorf("update record %d: %w", record.ID, err)
	}

	query, args, err = updateQuery(record).ToSql()
	if err != nil {
		return domain.Record{}, fmt.Errorf("build update: %w", err)
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return domain.Record{}, fmt.Errorf("update record %d: %w", record.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.Record{}, fmt.Errorf("update record %d: %w", record.ID, domain.ErrVersionConflict)
	}

	if err := tx.Commit(); err != nil {
		return domain.Record{}, fmt.Errorf("commit update: %w", err)
	}
	record.Version++
	return record, nil
}

func updateQuery(record domain.Record) sq.UpdateBuilder {
	return psql.Update(tableName).
		SetMap(map[string]any{
			"title":              nullString(record.Title),
			"body":               nullString(record.Body),
			"excerpt":            nullString(record.Excerpt),
			"excerpt_published":  record.ExcerptPublished,
			"tags":               nullString(record.Tags),
			"tags_attached":      record.TagsAttached,
			"remote_post_id":     nullInt(record.RemotePostID),
			"remote_post_synced": record.RemotePostSynced,
			"image_path":         nullString(record.ImagePath),
			"remote_image_id":    nullInt(record.RemoteImageID),
			"publish_url":        nullString(record.PublishURL),
			"status":             nullString(string(record.Status)),
			"last_stage":         nullString(string(record.LastStage)),
			"last_stage_at":      nullTime(record.LastStageAt),
			"lease_owner":        nullString(record.LeaseOwner),
			"lease_expires_at":   nullTime(record.LeaseExpiresAt),
			"version":            record.Version + 1,
		}).
		Where(sq.Eq{"id": record.ID, "version": record.Version})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (domain.Record, error) {
	var (
		r                                        domain.Record
		title, body, excerpt, tags               sql.NullString
		imagePath, publishURL, status, lastStage sql.NullString
		leaseOwner                               sql.NullString
		remotePostID, remoteImageID              sql.NullInt64
		lastStageAt, leaseExpiresAt              sql.NullTime
	)

	err := row.Scan(
		&r.ID,
		&r.TopicName,
		&title,
		&body,
		&excerpt,
		&r.ExcerptPublished,
		&tags,
		&r.TagsAttached,
		&remotePostID,
		&r.RemotePostSynced,
		&imagePath,
		&remoteImageID,
		&publishURL,
		&status,
		&lastStage,
		&lastStageAt,
		&r.Version,
		&leaseOwner,
		&leaseExpiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Record{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Record{}, fmt.Errorf("scan record: %w", err)
	}

	r.Title = title.String
	r.Body = body.String
	r.Excerpt = excerpt.String
	r.Tags = tags.String
	r.RemotePostID = remotePostID.Int64
	r.ImagePath = imagePath.String
	r.RemoteImageID = remoteImageID.Int64
	r.PublishURL = publishURL.String
	r.Status = domain.PublishStatus(status.String)
	r.LastStage = domain.Stage(lastStage.String)
	r.LastStageAt = lastStageAt.Time
	r.LeaseOwner = leaseOwner.String
	r.LeaseExpiresAt = leaseExpiresAt.Time
	return r, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

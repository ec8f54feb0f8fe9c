// Package repository persists one audit row per upload attempt. The data and
// metadata blob writes are not transactional, so this table is the surface
// operators use to reconcile data blobs whose companion record never landed.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no audit row matches an ID.
var ErrNotFound = errors.New("upload record not found")

// UploadRecord is a row in the upload_audit table.
type UploadRecord struct {
	ID               string    `json:"id"`
	LACode           string    `json:"laCode"`
	LAName           string    `json:"laName"`
	UserEmail        string    `json:"userEmail"`
	FileName         string    `json:"fileName"`
	DataPath         string    `json:"dataPath"`
	MetadataPath     string    `json:"metadataPath"`
	BytesReceived    int64     `json:"bytesReceived"`
	FileUploaded     bool      `json:"fileUploaded"`
	MetadataUploaded bool      `json:"metadataUploaded"`
	Notified         bool      `json:"notified"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// AuditRepository wraps all SQL used by the portal and the notify worker.
type AuditRepository struct {
	pool *pgxpool.Pool
}

// NewAuditRepository constructs a repository.
func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

// Connect opens a pgx connection pool using the provided DSN.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MaxConnIdleTime = 5 * time.Minute
	return pgxpool.NewWithConfig(ctx, cfg)
}

// EnsureSchema creates the upload_audit table if needed. Keeping the
// migration in code lets docker-compose bootstrap everything.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	const stmt = `
CREATE TABLE IF NOT EXISTS upload_audit (
	id TEXT PRIMARY KEY,
	la_code TEXT NOT NULL,
	la_name TEXT NOT NULL,
	user_email TEXT NOT NULL,
	file_name TEXT NOT NULL,
	data_path TEXT NOT NULL,
	metadata_path TEXT NOT NULL,
	bytes_received BIGINT NOT NULL,
	file_uploaded BOOLEAN NOT NULL,
	metadata_uploaded BOOLEAN NOT NULL,
	notified BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_upload_audit_la_code ON upload_audit(la_code);
CREATE INDEX IF NOT EXISTS idx_upload_audit_orphans ON upload_audit(metadata_uploaded) WHERE file_uploaded AND NOT metadata_uploaded;`
	if _, err := pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Create inserts the outcome of one upload attempt.
func (r *AuditRepository) Create(ctx context.Context, rec *UploadRecord) error {
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	_, err := r.pool.Exec(ctx, `
		INSERT INTO upload_audit (id, la_code, la_name, user_email, file_name, data_path, metadata_path,
			bytes_received, file_uploaded, metadata_uploaded, notified, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, rec.ID, rec.LACode, rec.LAName, rec.UserEmail, rec.FileName, rec.DataPath, rec.MetadataPath,
		rec.BytesReceived, rec.FileUploaded, rec.MetadataUploaded, rec.Notified, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert upload record: %w", err)
	}
	return nil
}

// Get returns an audit row by id.
func (r *AuditRepository) Get(ctx context.Context, id string) (*UploadRecord, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, la_code, la_name, user_email, file_name, data_path, metadata_path,
			bytes_received, file_uploaded, metadata_uploaded, notified, created_at, updated_at
		FROM upload_audit WHERE id=$1
	`, id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select upload record: %w", err)
	}
	return rec, nil
}

// MarkNotified records that the backend accepted the completion report.
func (r *AuditRepository) MarkNotified(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE upload_audit SET notified=TRUE, updated_at=$1 WHERE id=$2
	`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("mark notified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListOrphaned returns uploads whose data blob committed but whose metadata
// companion never did.
func (r *AuditRepository) ListOrphaned(ctx context.Context, limit int) ([]*UploadRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, la_code, la_name, user_email, file_name, data_path, metadata_path,
			bytes_received, file_uploaded, metadata_uploaded, notified, created_at, updated_at
		FROM upload_audit
		WHERE file_uploaded AND NOT metadata_uploaded
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("select orphaned uploads: %w", err)
	}
	defer rows.Close()

	var records []*UploadRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan upload record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate upload records: %w", err)
	}
	return records, nil
}

func scanRecord(row pgx.Row) (*UploadRecord, error) {
	var rec UploadRecord
	err := row.Scan(&rec.ID, &rec.LACode, &rec.LAName, &rec.UserEmail, &rec.FileName, &rec.DataPath,
		&rec.MetadataPath, &rec.BytesReceived, &rec.FileUploaded, &rec.MetadataUploaded, &rec.Notified,
		&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

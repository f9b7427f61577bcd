package recordstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/arcflow/orchestrator/numeric"
)

// SQLiteStore implements Store backed by a local SQLite file. Each record
// field has its own column; ingestion_data/management_data are stored as
// JSON text and decoded back into Go maps on read.
//
// Uses modernc.org/sqlite (pure Go, no cgo) with a single shared
// connection (SetMaxOpenConns(1)) so all goroutines serialize through one
// connection, avoiding SQLITE_BUSY under concurrent writers.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) a SQLite database file at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("recordstore: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Init creates the records table. Safe to call repeatedly.
func (s *SQLiteStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS records (
			tenant_id TEXT NOT NULL,
			record_id TEXT NOT NULL,
			domain_id TEXT NOT NULL,
			raw_input TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT '',
			ingestion_data TEXT NOT NULL DEFAULT '{}',
			management_data TEXT NOT NULL DEFAULT '{}',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (tenant_id, record_id)
		)
	`)
	if err != nil {
		return fmt.Errorf("recordstore: init: %w", err)
	}
	return nil
}

// CreateRecord implements Store.
func (s *SQLiteStore) CreateRecord(ctx context.Context, tenantID string, r Record) (string, error) {
	if r.RecordID == "" {
		r.RecordID = uuid.NewString()
	}
	r.TenantID = tenantID
	now := time.Now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	if r.IngestionData == nil {
		r.IngestionData = map[string]any{}
	}
	if r.ManagementData == nil {
		r.ManagementData = map[string]any{}
	}

	ingestionData, err := numeric.MaterializeFloats(r.IngestionData)
	if err != nil {
		return "", fmt.Errorf("recordstore: encode ingestion_data floats: %w", err)
	}
	managementData, err := numeric.MaterializeFloats(r.ManagementData)
	if err != nil {
		return "", fmt.Errorf("recordstore: encode management_data floats: %w", err)
	}
	ingestion, err := json.Marshal(ingestionData)
	if err != nil {
		return "", fmt.Errorf("recordstore: marshal ingestion_data: %w", err)
	}
	management, err := json.Marshal(managementData)
	if err != nil {
		return "", fmt.Errorf("recordstore: marshal management_data: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO records (tenant_id, record_id, domain_id, raw_input, status, ingestion_data, management_data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.TenantID, r.RecordID, r.DomainID, r.RawInput, r.Status, string(ingestion), string(management),
		r.CreatedAt.UnixMilli(), r.UpdatedAt.UnixMilli())
	if err != nil {
		return "", fmt.Errorf("recordstore: create record: %w", err)
	}
	return r.RecordID, nil
}

// MergeRecord implements Store.
func (s *SQLiteStore) MergeRecord(ctx context.Context, tenantID, recordID string, partial map[string]any) error {
	r, err := s.GetRecord(ctx, tenantID, recordID)
	if err != nil {
		return err
	}
	if r == nil {
		return fmt.Errorf("recordstore: record %s not found", recordID)
	}

	if v, ok := partial["ingestion_data"].(map[string]any); ok {
		r.IngestionData = DeepMerge(r.IngestionData, v)
	}
	if v, ok := partial["management_data"].(map[string]any); ok {
		r.ManagementData = DeepMerge(r.ManagementData, v)
	}
	if v, ok := partial["status"].(string); ok {
		r.Status = v
	}
	r.UpdatedAt = time.Now()

	ingestionData, err := numeric.MaterializeFloats(r.IngestionData)
	if err != nil {
		return fmt.Errorf("recordstore: encode ingestion_data floats: %w", err)
	}
	managementData, err := numeric.MaterializeFloats(r.ManagementData)
	if err != nil {
		return fmt.Errorf("recordstore: encode management_data floats: %w", err)
	}
	ingestion, err := json.Marshal(ingestionData)
	if err != nil {
		return fmt.Errorf("recordstore: marshal ingestion_data: %w", err)
	}
	management, err := json.Marshal(managementData)
	if err != nil {
		return fmt.Errorf("recordstore: marshal management_data: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE records SET status = ?, ingestion_data = ?, management_data = ?, updated_at = ?
		WHERE tenant_id = ? AND record_id = ?
	`, r.Status, string(ingestion), string(management), r.UpdatedAt.UnixMilli(), tenantID, recordID)
	if err != nil {
		return fmt.Errorf("recordstore: merge record: %w", err)
	}
	return nil
}

// GetRecord implements Store.
func (s *SQLiteStore) GetRecord(ctx context.Context, tenantID, recordID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT record_id, domain_id, raw_input, status, ingestion_data, management_data, created_at, updated_at
		FROM records WHERE tenant_id = ? AND record_id = ?
	`, tenantID, recordID)

	r, err := scanRecord(row, tenantID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("recordstore: get record: %w", err)
	}
	return r, nil
}

// QueryRecords implements Store. filters is matched against top-level
// ingestion_data keys by equality, evaluated in Go after a domain-scoped
// fetch (SQLite's json_extract is available but per-key string comparison
// keeps this adapter independent of a specific SQLite build's JSON1 support).
func (s *SQLiteStore) QueryRecords(ctx context.Context, tenantID, domainID string, filters map[string]any, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT record_id, domain_id, raw_input, status, ingestion_data, management_data, created_at, updated_at
		FROM records WHERE tenant_id = ? AND domain_id = ?
		ORDER BY created_at ASC
	`, tenantID, domainID)
	if err != nil {
		return nil, fmt.Errorf("recordstore: query records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows, tenantID)
		if err != nil {
			return nil, fmt.Errorf("recordstore: scan record: %w", err)
		}
		if !matches(*r, filters) {
			continue
		}
		out = append(out, *r)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner, tenantID string) (*Record, error) {
	var r Record
	var ingestion, management string
	var created, updated int64

	if err := row.Scan(&r.RecordID, &r.DomainID, &r.RawInput, &r.Status, &ingestion, &management, &created, &updated); err != nil {
		return nil, err
	}
	r.TenantID = tenantID
	r.CreatedAt = time.UnixMilli(created)
	r.UpdatedAt = time.UnixMilli(updated)

	if err := json.Unmarshal([]byte(ingestion), &r.IngestionData); err != nil {
		return nil, fmt.Errorf("unmarshal ingestion_data: %w", err)
	}
	if err := json.Unmarshal([]byte(management), &r.ManagementData); err != nil {
		return nil, fmt.Errorf("unmarshal management_data: %w", err)
	}
	return &r, nil
}

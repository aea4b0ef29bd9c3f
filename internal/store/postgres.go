package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sri0013/vnf-project/internal/domain"
	apperrors "github.com/sri0013/vnf-project/internal/pkg/errors"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS sfc_records (
	id           TEXT PRIMARY KEY,
	request_type TEXT NOT NULL,
	status       TEXT NOT NULL,
	request      JSONB NOT NULL,
	instance     JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS sfc_records_status_created_idx ON sfc_records (status, created_at);
`

const upsertSQL = `
INSERT INTO sfc_records (id, request_type, status, request, instance, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, now())
ON CONFLICT (id) DO UPDATE SET
	status     = EXCLUDED.status,
	request    = EXCLUDED.request,
	instance   = EXCLUDED.instance,
	updated_at = now()`

// PostgresStore keeps records in the sfc_records table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps a shared pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the table and index when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create sfc_records: %w", err)
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, rec domain.SFCRecord) error {
	if rec.Instance == nil || rec.Instance.ID == "" {
		return apperrors.ErrInvalidRequestFieldf("instance.id")
	}
	reqJSON, err := json.Marshal(rec.Request)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	instJSON, err := json.Marshal(rec.Instance)
	if err != nil {
		return fmt.Errorf("marshal instance: %w", err)
	}
	inst := rec.Instance
	if _, err := s.pool.Exec(ctx, upsertSQL,
		inst.ID, string(inst.RequestType), string(inst.Status), reqJSON, instJSON, inst.CreatedAt,
	); err != nil {
		return fmt.Errorf("save sfc record %s: %w", inst.ID, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (domain.SFCRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT request, instance FROM sfc_records WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.SFCRecord{}, apperrors.ErrSFCNotFoundf(id)
	}
	return rec, err
}

// List returns matching records oldest first.
func (s *PostgresStore) List(ctx context.Context, f Filter) ([]domain.SFCRecord, error) {
	rows, err := s.pool.Query(ctx, `
SELECT request, instance FROM sfc_records
WHERE ($1 = '' OR status = $1)
ORDER BY created_at, id
LIMIT NULLIF($2, 0)`, string(f.Status), f.Limit)
	if err != nil {
		return nil, fmt.Errorf("list sfc records: %w", err)
	}
	defer rows.Close()

	var out []domain.SFCRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanRecord(row pgx.Row) (domain.SFCRecord, error) {
	var reqJSON, instJSON []byte
	if err := row.Scan(&reqJSON, &instJSON); err != nil {
		return domain.SFCRecord{}, err
	}
	rec := domain.SFCRecord{Request: &domain.SFCRequest{}, Instance: &domain.SFCInstance{}}
	if err := json.Unmarshal(reqJSON, rec.Request); err != nil {
		return domain.SFCRecord{}, fmt.Errorf("decode request: %w", err)
	}
	if err := json.Unmarshal(instJSON, rec.Instance); err != nil {
		return domain.SFCRecord{}, fmt.Errorf("decode instance: %w", err)
	}
	return rec, nil
}

package scan

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"mehelper/internal/agent"
)

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Scan, error)
	// ListByPatient returns up to limit scans, newest first.
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit int) ([]*Scan, error)
	Save(ctx context.Context, s *Scan) error
	Delete(ctx context.Context, id uuid.UUID) error
	// Prune deletes all but the newest keep scans of a patient.
	Prune(ctx context.Context, patientID uuid.UUID, keep int) error
}

const scanColumns = `id, patient_id, form, risk_level, risk_source, local_risk_level, guidance, ai_response, image_analysis, created_at`

type postgresRepo struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &postgresRepo{db: db}
}

func (r *postgresRepo) GetByID(ctx context.Context, id uuid.UUID) (*Scan, error) {
	query := `SELECT ` + scanColumns + ` FROM scans WHERE id = $1`

	s, err := scanPostgresRow(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s, nil
}

func (r *postgresRepo) ListByPatient(ctx context.Context, patientID uuid.UUID, limit int) ([]*Scan, error) {
	query := `SELECT ` + scanColumns + ` FROM scans WHERE patient_id = $1 ORDER BY created_at DESC LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, patientID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing scans: %w", err)
	}
	defer rows.Close()

	scans := []*Scan{}
	for rows.Next() {
		s, err := scanPostgresRow(rows)
		if err != nil {
			return nil, err
		}
		scans = append(scans, s)
	}
	return scans, rows.Err()
}

func (r *postgresRepo) Save(ctx context.Context, s *Scan) error {
	cols, err := encodeColumns(s)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO scans (` + scanColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			form = $3,
			risk_level = $4,
			risk_source = $5,
			local_risk_level = $6,
			guidance = $7,
			ai_response = $8,
			image_analysis = $9
	`
	_, err = r.db.ExecContext(ctx, query,
		s.ID, s.PatientID, cols.form, s.RiskLevel, s.RiskSource, s.LocalRiskLevel,
		cols.guidance, cols.aiValue(), s.ImageAnalysis, s.CreatedAt)
	return err
}

func (r *postgresRepo) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM scans WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *postgresRepo) Prune(ctx context.Context, patientID uuid.UUID, keep int) error {
	query := `
		DELETE FROM scans
		WHERE patient_id = $1 AND id NOT IN (
			SELECT id FROM scans WHERE patient_id = $1 ORDER BY created_at DESC LIMIT $2
		)
	`
	_, err := r.db.ExecContext(ctx, query, patientID, keep)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPostgresRow(row rowScanner) (*Scan, error) {
	var s Scan
	var raw rawColumns

	err := row.Scan(
		&s.ID,
		&s.PatientID,
		&raw.form,
		&s.RiskLevel,
		&s.RiskSource,
		&s.LocalRiskLevel,
		&raw.guidance,
		&raw.aiResponse,
		&s.ImageAnalysis,
		&s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := raw.decodeInto(&s); err != nil {
		return nil, err
	}
	s.CreatedAt = s.CreatedAt.UTC()
	return &s, nil
}

// rawColumns holds the JSON-encoded columns shared by both stores.
type rawColumns struct {
	form       []byte
	guidance   []byte
	aiResponse []byte
}

func encodeColumns(s *Scan) (rawColumns, error) {
	var cols rawColumns
	var err error

	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	if cols.form, err = json.Marshal(s.Form); err != nil {
		return cols, fmt.Errorf("failed to marshal form: %w", err)
	}
	if cols.guidance, err = json.Marshal(s.Guidance); err != nil {
		return cols, fmt.Errorf("failed to marshal guidance: %w", err)
	}
	if s.AIResponse != nil {
		if cols.aiResponse, err = json.Marshal(s.AIResponse); err != nil {
			return cols, fmt.Errorf("failed to marshal ai response: %w", err)
		}
	}
	return cols, nil
}

// aiValue is the ai_response argument; nil stores NULL.
func (c rawColumns) aiValue() any {
	if c.aiResponse == nil {
		return nil
	}
	return c.aiResponse
}

func (c rawColumns) decodeInto(s *Scan) error {
	if err := json.Unmarshal(c.form, &s.Form); err != nil {
		return fmt.Errorf("failed to unmarshal form: %w", err)
	}
	if err := json.Unmarshal(c.guidance, &s.Guidance); err != nil {
		return fmt.Errorf("failed to unmarshal guidance: %w", err)
	}
	if len(c.aiResponse) > 0 {
		s.AIResponse = &agent.Analysis{}
		if err := json.Unmarshal(c.aiResponse, s.AIResponse); err != nil {
			return fmt.Errorf("failed to unmarshal ai response: %w", err)
		}
	}
	return nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

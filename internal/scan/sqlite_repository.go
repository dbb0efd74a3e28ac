package scan

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"mehelper/migrations"
)

// SQLiteRepository keeps scan history in a local database file for the CLI.
type SQLiteRepository struct {
	db   *sql.DB
	path string
}

// NewSQLiteRepository opens (or creates) history.db under dataDir. An empty
// dataDir selects ~/.mehelper.
func NewSQLiteRepository(dataDir string) (*SQLiteRepository, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".mehelper")
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "history.db")
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	r := &SQLiteRepository{db: db, path: dbPath}
	if err := r.migrate(migrations.SQLite()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return r, nil
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// Path returns the database file path.
func (r *SQLiteRepository) Path() string {
	return r.path
}

// migrate applies every NNN_name.up.sql newer than the recorded version.
func (r *SQLiteRepository) migrate(fsys fs.FS) error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := r.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	var upFiles []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			upFiles = append(upFiles, e.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= current {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := r.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := r.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id uuid.UUID) (*Scan, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+scanColumns+` FROM scans WHERE id = ?`, id.String())
	s, err := scanSQLiteRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s, nil
}

func (r *SQLiteRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, limit int) ([]*Scan, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+scanColumns+` FROM scans WHERE patient_id = ? ORDER BY created_at DESC LIMIT ?`,
		patientID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("listing scans: %w", err)
	}
	defer rows.Close()

	scans := []*Scan{}
	for rows.Next() {
		s, err := scanSQLiteRow(rows)
		if err != nil {
			return nil, err
		}
		scans = append(scans, s)
	}
	return scans, rows.Err()
}

func (r *SQLiteRepository) Save(ctx context.Context, s *Scan) error {
	cols, err := encodeColumns(s)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO scans (`+scanColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			form = excluded.form,
			risk_level = excluded.risk_level,
			risk_source = excluded.risk_source,
			local_risk_level = excluded.local_risk_level,
			guidance = excluded.guidance,
			ai_response = excluded.ai_response,
			image_analysis = excluded.image_analysis
	`,
		s.ID.String(), s.PatientID.String(), string(cols.form),
		string(s.RiskLevel), string(s.RiskSource), string(s.LocalRiskLevel),
		string(cols.guidance), textOrNull(cols.aiResponse), s.ImageAnalysis, s.CreatedAt.UnixNano())
	return err
}

func (r *SQLiteRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM scans WHERE id = ?`, id.String())
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *SQLiteRepository) Prune(ctx context.Context, patientID uuid.UUID, keep int) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM scans
		WHERE patient_id = ? AND id NOT IN (
			SELECT id FROM scans WHERE patient_id = ? ORDER BY created_at DESC LIMIT ?
		)
	`, patientID.String(), patientID.String(), keep)
	return err
}

func scanSQLiteRow(row rowScanner) (*Scan, error) {
	var s Scan
	var id, patientID string
	var form, guidance string
	var aiResponse sql.NullString
	var createdAt int64

	err := row.Scan(&id, &patientID, &form, &s.RiskLevel, &s.RiskSource, &s.LocalRiskLevel,
		&guidance, &aiResponse, &s.ImageAnalysis, &createdAt)
	if err != nil {
		return nil, err
	}

	if s.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parsing scan id: %w", err)
	}
	if s.PatientID, err = uuid.Parse(patientID); err != nil {
		return nil, fmt.Errorf("parsing patient id: %w", err)
	}
	s.CreatedAt = time.Unix(0, createdAt).UTC()

	raw := rawColumns{form: []byte(form), guidance: []byte(guidance)}
	if aiResponse.Valid {
		raw.aiResponse = []byte(aiResponse.String)
	}
	if err := raw.decodeInto(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

func textOrNull(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}

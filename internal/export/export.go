// Package export snapshots a storage root into a SQLite database: one table
// per model, one column per stored field plus the partition date.
//
// The snapshot is read-only output. Re-exporting into the same file replaces
// every model table.
package export

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/roach88/vaultorm/internal/ir"
	"github.com/roach88/vaultorm/internal/schema"
	"github.com/roach88/vaultorm/internal/store"
)

// PartitionColumn holds the partition date of each exported row.
const PartitionColumn = "_partition"

// formatVersion is written to PRAGMA user_version.
const formatVersion = 1

// ModelSummary reports what was exported for one model.
type ModelSummary struct {
	Model      string `json:"model"`
	Partitions int    `json:"partitions"`
	Rows       int    `json:"rows"`
}

// Summary reports an export.
type Summary struct {
	Path   string         `json:"path"`
	Models []ModelSummary `json:"models"`
}

// Rows returns the total number of exported rows.
func (s Summary) Rows() int {
	n := 0
	for _, m := range s.Models {
		n += m.Rows
	}
	return n
}

// Open creates or opens a SQLite database at path.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	return db, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// Exporter copies records from a Store into SQLite.
type Exporter struct {
	store    *store.Store
	registry *schema.Registry
	log      logrus.FieldLogger
}

// New returns an Exporter for the models of reg stored in s.
func New(s *store.Store, reg *schema.Registry, log logrus.FieldLogger) *Exporter {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Exporter{store: s, registry: reg, log: log}
}

// Export writes every registered model to the SQLite file at path. Records
// are read through the store, so encryption, codecs and the corruption
// policy apply as for queries. Only declared fields are exported; a field
// named like PartitionColumn is rejected before anything is written.
func (e *Exporter) Export(ctx context.Context, path string) (Summary, error) {
	for _, m := range e.registry.Models() {
		if _, ok := m.Field(PartitionColumn); ok {
			return Summary{}, fmt.Errorf("export %s: field %s.%s collides with the partition column", path, m.Name, PartitionColumn)
		}
	}

	db, err := Open(path)
	if err != nil {
		return Summary{}, fmt.Errorf("export %s: %w", path, err)
	}
	defer db.Close()

	summary := Summary{Path: path}
	for _, m := range e.registry.Models() {
		ms, err := e.exportModel(ctx, db, m)
		if err != nil {
			return summary, fmt.Errorf("export %s: %w", m.Name, err)
		}
		summary.Models = append(summary.Models, ms)
		e.log.WithFields(logrus.Fields{
			"model":      m.Name,
			"partitions": ms.Partitions,
			"rows":       ms.Rows,
		}).Debug("exported model")
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", formatVersion)); err != nil {
		return summary, fmt.Errorf("export %s: set user_version: %w", path, err)
	}
	return summary, nil
}

func (e *Exporter) exportModel(ctx context.Context, db *sql.DB, m *schema.Model) (ModelSummary, error) {
	ms := ModelSummary{Model: m.Name}

	partitions, err := e.store.Scan(ctx, m.Name, nil)
	if err != nil {
		return ms, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return ms, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	fields := m.FieldNames()
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(m.Name)); err != nil {
		return ms, fmt.Errorf("drop table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, createTableSQL(m.Name, fields)); err != nil {
		return ms, fmt.Errorf("create table: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, insertSQL(m.Name, fields))
	if err != nil {
		return ms, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range partitions {
		records, err := e.store.Load(ctx, p)
		if err != nil {
			return ms, err
		}
		ms.Partitions++

		for _, rec := range records {
			args := make([]any, 0, len(fields)+1)
			args = append(args, p.Date)
			for _, f := range fields {
				v, err := column(rec[f])
				if err != nil {
					return ms, fmt.Errorf("%s.%s: %w", m.Name, f, err)
				}
				args = append(args, v)
			}
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return ms, fmt.Errorf("insert: %w", err)
			}
			ms.Rows++
		}
	}

	if err := tx.Commit(); err != nil {
		return ms, fmt.Errorf("commit: %w", err)
	}
	return ms, nil
}

// column converts a record value to a SQLite value. Composites are stored as
// canonical JSON text.
func column(v any) (any, error) {
	switch val := ir.Normalize(v).(type) {
	case nil, string, int64, float64, bool:
		return val, nil
	default:
		b, err := ir.MarshalCanonical(val)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}
}

func createTableSQL(table string, fields []string) string {
	cols := make([]string, 0, len(fields)+1)
	cols = append(cols, quoteIdent(PartitionColumn)+" TEXT NOT NULL")
	for _, f := range fields {
		cols = append(cols, quoteIdent(f))
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(table), strings.Join(cols, ", "))
}

func insertSQL(table string, fields []string) string {
	cols := make([]string, 0, len(fields)+1)
	cols = append(cols, quoteIdent(PartitionColumn))
	for _, f := range fields {
		cols = append(cols, quoteIdent(f))
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quoteIdent(table), strings.Join(cols, ", "), marks)
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

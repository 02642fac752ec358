// internal/storage/database/database.go
package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"stagehand/internal/types"
	"stagehand/internal/types/options"
	"stagehand/pkg/utils"
)

// Database conserve l'historique des opérations dans une base sqlite.
type Database struct {
	db        *sql.DB
	retention int
	logger    *logrus.Logger
}

// NewDatabase ouvre (ou crée) la base d'historique. retention borne le
// nombre d'entrées conservées, 0 pour illimité.
func NewDatabase(dbPath string, retention int, logger *logrus.Logger) (*Database, error) {
	expanded, err := utils.ExpandPath(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	d := &Database{db: db, retention: retention, logger: logger}
	if err := d.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

func (d *Database) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS operation_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		operation TEXT NOT NULL,
		subject TEXT NOT NULL,
		source_tag TEXT,
		target_tag TEXT,
		status TEXT NOT NULL,
		message TEXT,
		created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
	);
	CREATE INDEX IF NOT EXISTS idx_operation ON operation_history(operation);
	CREATE INDEX IF NOT EXISTS idx_subject ON operation_history(subject);
	CREATE INDEX IF NOT EXISTS idx_created_at ON operation_history(created_at);
	`
	if _, err := d.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Close ferme la base.
func (d *Database) Close() error {
	return d.db.Close()
}

// SaveEntry enregistre une entrée et applique la rétention.
func (d *Database) SaveEntry(entry *types.HistoryEntry) error {
	createdAt := time.Now().UTC().Format(time.RFC3339)

	result, err := d.db.Exec(`
		INSERT INTO operation_history (operation, subject, source_tag, target_tag, status, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.Operation, entry.Subject, entry.SourceTag, entry.TargetTag,
		entry.Status, entry.Message, createdAt)
	if err != nil {
		return fmt.Errorf("failed to save history entry: %w", err)
	}

	if id, err := result.LastInsertId(); err == nil {
		entry.ID = id
	}
	entry.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

	if d.retention > 0 {
		if err := d.Cleanup(d.retention); err != nil {
			d.logger.Warnf("history cleanup failed: %v", err)
		}
	}
	return nil
}

// GetHistory retourne les entrées filtrées selon les options.
func (d *Database) GetHistory(opts *options.HistoryOptions) ([]*types.HistoryEntry, error) {
	if opts == nil {
		opts = options.NewHistoryOptions()
	}

	query := `SELECT id, operation, subject, source_tag, target_tag, status, message, created_at
		FROM operation_history`
	var conditions []string
	var args []interface{}

	if len(opts.Subjects) > 0 {
		placeholders := make([]string, len(opts.Subjects))
		for i, subject := range opts.Subjects {
			placeholders[i] = "?"
			args = append(args, subject)
		}
		conditions = append(conditions, fmt.Sprintf("subject IN (%s)",
			strings.Join(placeholders, ",")))
	}
	if opts.Operation != "" {
		conditions = append(conditions, "operation = ?")
		args = append(args, opts.Operation)
	}
	if opts.Since != "" {
		since, err := utils.ParseTime(opts.Since)
		if err != nil {
			return nil, fmt.Errorf("invalid since date: %w", err)
		}
		conditions = append(conditions, "created_at >= ?")
		args = append(args, since.UTC().Format(time.RFC3339))
	}
	if opts.Before != "" {
		before, err := utils.ParseTime(opts.Before)
		if err != nil {
			return nil, fmt.Errorf("invalid before date: %w", err)
		}
		conditions = append(conditions, "created_at <= ?")
		args = append(args, before.UTC().Format(time.RFC3339))
	}
	if opts.Search != "" {
		conditions = append(conditions, "(message LIKE ? OR status LIKE ?)")
		pattern := "%" + opts.Search + "%"
		args = append(args, pattern, pattern)
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	if opts.SortBy == "subject" {
		query += " ORDER BY subject ASC, created_at DESC"
	} else {
		query += " ORDER BY created_at DESC"
	}

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []*types.HistoryEntry
	for rows.Next() {
		entry := &types.HistoryEntry{}
		var createdAt string
		if err := rows.Scan(&entry.ID, &entry.Operation, &entry.Subject,
			&entry.SourceTag, &entry.TargetTag, &entry.Status,
			&entry.Message, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		if parsed, err := utils.ParseTime(createdAt); err == nil {
			entry.CreatedAt = parsed
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history rows: %w", err)
	}

	// Ne garder que la dernière entrée de chaque sujet.
	if opts.Last {
		seen := make(map[string]bool)
		var deduped []*types.HistoryEntry
		for _, entry := range entries {
			if seen[entry.Subject] {
				continue
			}
			seen[entry.Subject] = true
			deduped = append(deduped, entry)
		}
		entries = deduped
	}

	if opts.Limit > 0 && len(entries) > opts.Limit {
		entries = entries[:opts.Limit]
	}
	return entries, nil
}

// Cleanup supprime les entrées au-delà des retain plus récentes.
func (d *Database) Cleanup(retain int) error {
	_, err := d.db.Exec(`
		DELETE FROM operation_history WHERE id IN (
			SELECT id FROM operation_history
			ORDER BY created_at DESC, id DESC
			LIMIT -1 OFFSET ?
		)`, retain)
	if err != nil {
		return fmt.Errorf("failed to cleanup history: %w", err)
	}
	return nil
}

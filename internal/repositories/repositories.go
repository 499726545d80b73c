// package repositories provides persistence layer implementations for all model types.
//
// Each repository implements models.Repository[T] for a specific entity type,
// handling CRUD operations, soft deletes, and sequence generation.
package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/tracklift/internal/shared"
	"github.com/mattn/go-sqlite3"
)

// NextSequence atomically increments and returns the next sequence number for the given table.
//
// Sequence numbers provide human-readable ordering for entities (e.g., artist #42, album #15).
// They are NOT exposed in CLI output but used internally for sorting and debugging.
func NextSequence(db *sql.DB, table string) (int, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	sequenceTable := table + "_sequence"

	_, err = tx.Exec(fmt.Sprintf("UPDATE %s SET value = value + 1 WHERE id = 1", sequenceTable))
	if err != nil {
		return 0, fmt.Errorf("failed to increment sequence: %w", err)
	}

	var sequence int
	err = tx.QueryRow(fmt.Sprintf("SELECT value FROM %s WHERE id = 1", sequenceTable)).Scan(&sequence)
	if err != nil {
		return 0, fmt.Errorf("failed to get sequence value: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit sequence transaction: %w", err)
	}

	return sequence, nil
}

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint")
}

// softDelete marks the live row with the given id as deleted.
func softDelete(db *sql.DB, table, id string) error {
	query := fmt.Sprintf("UPDATE %s SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL", table)

	result, err := db.Exec(query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, err)
	}

	return requireAffected(result, table, id)
}

func requireAffected(result sql.Result, table, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s %s not found or already deleted", shared.ErrNotFound, table, id)
	}
	return nil
}

// linkRows inserts (owner, target, position) junction rows, keeping links that already exist.
func linkRows(db *sql.DB, table, ownerCol, targetCol, ownerID string, targetIDs []string, offset int) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf("INSERT OR IGNORE INTO %s (%s, %s, position) VALUES (?, ?, ?)", table, ownerCol, targetCol)
	for i, targetID := range targetIDs {
		if _, err := tx.Exec(query, ownerID, targetID, offset+i); err != nil {
			return fmt.Errorf("failed to link %s %s -> %s: %w", table, ownerID, targetID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit links: %w", err)
	}
	return nil
}

// unlinkRows removes junction rows for ownerID. With no targetIDs every link of the owner is removed.
func unlinkRows(db *sql.DB, table, ownerCol, targetCol, ownerID string, targetIDs ...string) error {
	if len(targetIDs) == 0 {
		query := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", table, ownerCol)
		if _, err := db.Exec(query, ownerID); err != nil {
			return fmt.Errorf("failed to unlink %s for %s: %w", table, ownerID, err)
		}
		return nil
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE %s = ? AND %s = ?", table, ownerCol, targetCol)
	for _, targetID := range targetIDs {
		if _, err := db.Exec(query, ownerID, targetID); err != nil {
			return fmt.Errorf("failed to unlink %s %s -> %s: %w", table, ownerID, targetID, err)
		}
	}
	return nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func joinList(items []string) string {
	return strings.Join(items, ",")
}

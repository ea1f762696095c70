package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"bonus-tracker-api/internal/models"
)

var (
	// ErrNotFound is returned when a bonus id does not exist.
	ErrNotFound = errors.New("bonus not found")
	// ErrConflict is returned when a conditional status update lost a race:
	// the persisted status no longer matches what the caller read.
	ErrConflict = errors.New("bonus status changed concurrently")
)

// DB wraps the database connection and provides methods for data access.
type DB struct {
	conn *sql.DB
}

// NewDB creates a new database connection and initializes the schema.
func NewDB(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=1")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// initSchema creates the necessary tables if they don't exist.
func (db *DB) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS bonuses (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			category TEXT NOT NULL,
			institution_name TEXT NOT NULL,
			card_name TEXT,
			bonus_amount TEXT NOT NULL,
			bonus_value_amount TEXT,
			status TEXT NOT NULL,
			requirements_met INTEGER NOT NULL,
			deadline TEXT,
			spend_requirement TEXT,
			current_spend TEXT,
			received_date TEXT,
			is_taxable INTEGER NOT NULL,
			taxable_amount TEXT,
			form_1099_received INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bonuses_user_id ON bonuses(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bonuses_status ON bonuses(status)`,
		`CREATE INDEX IF NOT EXISTS idx_bonuses_user_status ON bonuses(user_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_bonuses_deadline ON bonuses(deadline)`,
	}

	for _, query := range queries {
		if _, err := db.conn.Exec(query); err != nil {
			return fmt.Errorf("failed to execute schema query: %w", err)
		}
	}

	return nil
}

const bonusColumns = `id, user_id, category, institution_name, card_name,
	bonus_amount, bonus_value_amount, status, requirements_met, deadline,
	spend_requirement, current_spend, received_date, is_taxable,
	taxable_amount, form_1099_received, created_at`

// InsertBonus persists a new bonus record.
func (db *DB) InsertBonus(rec models.BonusRecord) error {
	query := `INSERT INTO bonuses (` + bonusColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := db.conn.Exec(
		query,
		rec.ID,
		rec.UserID,
		string(rec.Category),
		rec.InstitutionName,
		nullString(rec.CardName),
		rec.BonusAmount.String(),
		nullDecimal(rec.BonusValueAmount),
		string(rec.Status),
		rec.RequirementsMet,
		nullTime(rec.Deadline),
		nullDecimal(rec.SpendRequirement),
		nullDecimal(rec.CurrentSpend),
		nullTime(rec.ReceivedDate),
		rec.IsTaxable,
		nullDecimal(rec.TaxableAmount),
		rec.Form1099Received,
		rec.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert bonus: %w", err)
	}

	return nil
}

// GetBonus fetches a single bonus by id.
func (db *DB) GetBonus(id string) (models.BonusRecord, error) {
	query := `SELECT ` + bonusColumns + ` FROM bonuses WHERE id = ?`

	row := db.conn.QueryRow(query, id)
	rec, err := scanBonus(row)
	if err == sql.ErrNoRows {
		return models.BonusRecord{}, ErrNotFound
	}
	if err != nil {
		return models.BonusRecord{}, fmt.Errorf("failed to get bonus: %w", err)
	}
	return rec, nil
}

// ListBonuses returns all bonus records for a user, newest first.
func (db *DB) ListBonuses(userID string) ([]models.BonusRecord, error) {
	query := `SELECT ` + bonusColumns + ` FROM bonuses
		WHERE user_id = ? ORDER BY created_at DESC, id`

	rows, err := db.conn.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bonuses: %w", err)
	}
	defer rows.Close()

	var records []models.BonusRecord
	for rows.Next() {
		rec, err := scanBonus(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bonus: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bonuses: %w", err)
	}

	return records, nil
}

// ListUserIDs returns every user that has at least one bonus. Used by the
// background sweep.
func (db *DB) ListUserIDs() ([]string, error) {
	rows, err := db.conn.Query(`SELECT DISTINCT user_id FROM bonuses`)
	if err != nil {
		return nil, fmt.Errorf("failed to query user ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user ids: %w", err)
	}

	return ids, nil
}

// UpdateBonus overwrites every mutable field of an existing record. This is
// the field-edit / manual-override path; transitions go through
// UpdateBonusStatus instead so they stay conditional.
func (db *DB) UpdateBonus(rec models.BonusRecord) error {
	query := `UPDATE bonuses SET
		institution_name = ?,
		card_name = ?,
		bonus_amount = ?,
		bonus_value_amount = ?,
		status = ?,
		requirements_met = ?,
		deadline = ?,
		spend_requirement = ?,
		current_spend = ?,
		received_date = ?,
		is_taxable = ?,
		taxable_amount = ?,
		form_1099_received = ?,
		updated_at = ?
		WHERE id = ?`

	res, err := db.conn.Exec(
		query,
		rec.InstitutionName,
		nullString(rec.CardName),
		rec.BonusAmount.String(),
		nullDecimal(rec.BonusValueAmount),
		string(rec.Status),
		rec.RequirementsMet,
		nullTime(rec.Deadline),
		nullDecimal(rec.SpendRequirement),
		nullDecimal(rec.CurrentSpend),
		nullTime(rec.ReceivedDate),
		rec.IsTaxable,
		nullDecimal(rec.TaxableAmount),
		rec.Form1099Received,
		time.Now().UTC().Format(time.RFC3339),
		rec.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update bonus: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// UpdateBonusStatus applies a status transition conditionally: the row is
// only written when the persisted status still equals expected. Two sweeps
// (or a sweep racing a manual transition) cannot clobber each other; the
// loser gets ErrConflict and decides whether to retry.
func (db *DB) UpdateBonusStatus(id string, expected, next models.Status, requirementsMet bool, receivedDate *time.Time) error {
	query := `UPDATE bonuses SET
		status = ?,
		requirements_met = ?,
		received_date = ?,
		updated_at = ?
		WHERE id = ? AND status = ?`

	res, err := db.conn.Exec(
		query,
		string(next),
		requirementsMet,
		nullTime(receivedDate),
		time.Now().UTC().Format(time.RFC3339),
		id,
		string(expected),
	)
	if err != nil {
		return fmt.Errorf("failed to update bonus status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 1 {
		return nil
	}

	// Zero rows: either the id is gone or the status moved underneath us.
	var exists int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM bonuses WHERE id = ?`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check bonus existence: %w", err)
	}
	if exists == 0 {
		return ErrNotFound
	}
	return ErrConflict
}

// DeleteBonus removes a bonus at any status.
func (db *DB) DeleteBonus(id string) error {
	res, err := db.conn.Exec(`DELETE FROM bonuses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete bonus: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanBonus(s scanner) (models.BonusRecord, error) {
	var rec models.BonusRecord
	var category, status, bonusAmount, createdAt string
	var cardName, bonusValueAmount, deadline, spendRequirement, currentSpend, receivedDate, taxableAmount sql.NullString

	err := s.Scan(
		&rec.ID,
		&rec.UserID,
		&category,
		&rec.InstitutionName,
		&cardName,
		&bonusAmount,
		&bonusValueAmount,
		&status,
		&rec.RequirementsMet,
		&deadline,
		&spendRequirement,
		&currentSpend,
		&receivedDate,
		&rec.IsTaxable,
		&taxableAmount,
		&rec.Form1099Received,
		&createdAt,
	)
	if err != nil {
		return models.BonusRecord{}, err
	}

	rec.Category, err = models.ParseCategory(category)
	if err != nil {
		return models.BonusRecord{}, err
	}
	rec.Status, err = models.ParseStatus(status)
	if err != nil {
		return models.BonusRecord{}, err
	}

	rec.CardName = cardName.String

	rec.BonusAmount, err = decimal.NewFromString(bonusAmount)
	if err != nil {
		return models.BonusRecord{}, fmt.Errorf("failed to parse bonus_amount: %w", err)
	}
	if rec.BonusValueAmount, err = parseNullDecimal(bonusValueAmount, "bonus_value_amount"); err != nil {
		return models.BonusRecord{}, err
	}
	if rec.SpendRequirement, err = parseNullDecimal(spendRequirement, "spend_requirement"); err != nil {
		return models.BonusRecord{}, err
	}
	if rec.CurrentSpend, err = parseNullDecimal(currentSpend, "current_spend"); err != nil {
		return models.BonusRecord{}, err
	}
	if rec.TaxableAmount, err = parseNullDecimal(taxableAmount, "taxable_amount"); err != nil {
		return models.BonusRecord{}, err
	}

	if rec.Deadline, err = parseNullTime(deadline, "deadline"); err != nil {
		return models.BonusRecord{}, err
	}
	if rec.ReceivedDate, err = parseNullTime(receivedDate, "received_date"); err != nil {
		return models.BonusRecord{}, err
	}

	rec.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return models.BonusRecord{}, fmt.Errorf("failed to parse created_at: %w", err)
	}

	return rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func parseNullDecimal(s sql.NullString, field string) (*decimal.Decimal, error) {
	if !s.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", field, err)
	}
	return &d, nil
}

func parseNullTime(s sql.NullString, field string) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", field, err)
	}
	return &t, nil
}

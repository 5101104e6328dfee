// Package store provides the settlement audit journal.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"securities-trader/internal/models"
)

// SQLiteJournal records funding decisions, confirmation events and transfer
// executions. Partial failures leave the pending order and executed transfers
// in place remotely; the journal is the local record used for manual
// reconciliation.
type SQLiteJournal struct {
	db *sql.DB
}

// NewSQLiteJournal opens (or creates) the journal database.
func NewSQLiteJournal(dbPath string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	j := &SQLiteJournal{db: db}
	if err := j.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return j, nil
}

// initSchema creates all required tables and indexes.
func (j *SQLiteJournal) initSchema() error {
	schema := `
	-- Funding classifications per submission request
	CREATE TABLE IF NOT EXISTS funding_decisions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
		isin TEXT NOT NULL,
		decision TEXT NOT NULL,
		currency TEXT NOT NULL,
		required TEXT NOT NULL
	);

	-- Confirmation-code events (sent, resent, verified, rejected)
	CREATE TABLE IF NOT EXISTS confirmations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
		phone TEXT NOT NULL,
		event TEXT NOT NULL
	);

	-- Per-step transfer outcomes
	CREATE TABLE IF NOT EXISTS transfer_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
		pending_order_id TEXT NOT NULL,
		step_index INTEGER NOT NULL,
		from_account INTEGER NOT NULL,
		to_account INTEGER NOT NULL,
		currency TEXT NOT NULL,
		amount TEXT NOT NULL,
		conversion INTEGER NOT NULL,
		status TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transfer_log_order ON transfer_log(pending_order_id);

	-- Terminal outcomes per order attempt
	CREATE TABLE IF NOT EXISTS order_outcomes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
		order_id TEXT,
		state TEXT NOT NULL,
		detail TEXT
	);
	`
	_, err := j.db.Exec(schema)
	return err
}

// RecordDecision records one funding classification.
func (j *SQLiteJournal) RecordDecision(ctx context.Context, isin, decision, currency, required string) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO funding_decisions (isin, decision, currency, required) VALUES (?, ?, ?, ?)`,
		isin, decision, currency, required)
	return err
}

// RecordConfirmation records one confirmation-code event.
func (j *SQLiteJournal) RecordConfirmation(ctx context.Context, phone, event string) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO confirmations (phone, event) VALUES (?, ?)`,
		maskPhone(phone), event)
	return err
}

// RecordTransfer records the outcome of one transfer step.
func (j *SQLiteJournal) RecordTransfer(ctx context.Context, pendingOrderID string, stepIndex int, step models.TransferStep, status string) error {
	conversion := 0
	if step.ConversionNeeded {
		conversion = 1
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO transfer_log (pending_order_id, step_index, from_account, to_account, currency, amount, conversion, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		pendingOrderID, stepIndex, step.FromAccountID, step.ToAccountID, step.Currency, step.Amount.String(), conversion, status)
	return err
}

// RecordOutcome records the terminal state of an order attempt.
func (j *SQLiteJournal) RecordOutcome(ctx context.Context, orderID, state, detail string) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO order_outcomes (order_id, state, detail) VALUES (?, ?, ?)`,
		orderID, state, detail)
	return err
}

// UnsettledTransfers returns the failed transfer steps recorded for a pending
// order, for the manual reconciliation path.
func (j *SQLiteJournal) UnsettledTransfers(ctx context.Context, pendingOrderID string) ([]models.TransferStep, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT from_account, to_account, currency, amount, conversion
		 FROM transfer_log WHERE pending_order_id = ? AND status = 'failed' ORDER BY step_index`,
		pendingOrderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []models.TransferStep
	for rows.Next() {
		var step models.TransferStep
		var amount string
		var conversion int
		if err := rows.Scan(&step.FromAccountID, &step.ToAccountID, &step.Currency, &amount, &conversion); err != nil {
			return nil, err
		}
		if err := step.Amount.Scan(amount); err != nil {
			return nil, fmt.Errorf("parsing amount %q: %w", amount, err)
		}
		step.ConversionNeeded = conversion == 1
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

// Close closes the underlying database.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

// maskPhone hides all but the last three digits of a phone number.
func maskPhone(phone string) string {
	if len(phone) <= 3 {
		return phone
	}
	masked := make([]byte, len(phone)-3)
	for i := range masked {
		masked[i] = '*'
	}
	return string(masked) + phone[len(phone)-3:]
}

package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	ts              TEXT NOT NULL,
	month_total     INTEGER NOT NULL DEFAULT 0,
	sender          TEXT NOT NULL DEFAULT '',
	classification  TEXT NOT NULL DEFAULT '',
	amount          TEXT NOT NULL DEFAULT '',
	description     TEXT NOT NULL DEFAULT '',
	attachment_name TEXT NOT NULL DEFAULT '',
	ocr_text        TEXT NOT NULL DEFAULT '',
	party_a_amount  TEXT NOT NULL DEFAULT '',
	party_b_amount  TEXT NOT NULL DEFAULT '',
	annotation      TEXT NOT NULL DEFAULT '',
	disregarded     INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (ts, month_total)
);

CREATE TABLE IF NOT EXISTS corrections (
	id          TEXT PRIMARY KEY,
	entry_ts    TEXT NOT NULL,
	command     TEXT NOT NULL,
	changes     TEXT NOT NULL DEFAULT '{}',
	success     INTEGER NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	executed_at TEXT NOT NULL,
	duration_ms INTEGER NOT NULL DEFAULT 0
);
`

// dbTimeLayout keeps stored timestamps lexically sortable.
const dbTimeLayout = "2006-01-02T15:04:05"

// SQLiteRepository persists the ledger and the correction history in one
// embedded sqlite database.
type SQLiteRepository struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and bootstraps the
// schema. Connections are capped at one to avoid sqlite lock contention,
// which also makes SaveAll a single-writer critical section.
func OpenSQLite(path string) (*SQLiteRepository, error) {
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("ledger.OpenSQLite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger.OpenSQLite: ping: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger.OpenSQLite: schema: %w", err)
	}
	return &SQLiteRepository{db: db}, nil
}

// LoadAll implements Repository.
func (r *SQLiteRepository) LoadAll(ctx context.Context) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ts, month_total, sender, classification, amount, description,
		       attachment_name, ocr_text, party_a_amount, party_b_amount,
		       annotation, disregarded
		FROM entries
		ORDER BY ts ASC, month_total ASC`)
	if err != nil {
		return nil, fmt.Errorf("ledger.LoadAll: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e           Entry
			ts          string
			monthTotal  int
			disregarded int
		)
		if err := rows.Scan(&ts, &monthTotal, &e.Sender, (*string)(&e.Classification),
			&e.Amount, &e.Description, &e.AttachmentName, &e.OCRText,
			&e.PartyAmounts[0], &e.PartyAmounts[1], &e.Annotation, &disregarded); err != nil {
			return nil, fmt.Errorf("ledger.LoadAll: scan: %w", err)
		}
		e.Timestamp, err = time.Parse(dbTimeLayout, ts)
		if err != nil {
			return nil, fmt.Errorf("ledger.LoadAll: bad timestamp %q: %w", ts, err)
		}
		e.MonthTotal = monthTotal != 0
		e.Disregarded = disregarded != 0
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger.LoadAll: %w", err)
	}
	return out, nil
}

// SaveAll implements Repository. The previous set is dropped and the new
// one inserted inside a single transaction; a concurrent reader sees the
// old set or the new set, never a partial rewrite.
func (r *SQLiteRepository) SaveAll(ctx context.Context, entries []Entry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ledger.SaveAll: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entries`); err != nil {
		return fmt.Errorf("ledger.SaveAll: clear: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entries (ts, month_total, sender, classification, amount,
			description, attachment_name, ocr_text, party_a_amount,
			party_b_amount, annotation, disregarded)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("ledger.SaveAll: prepare: %w", err)
	}
	defer stmt.Close()

	for i := range entries {
		e := &entries[i]
		_, err := stmt.ExecContext(ctx,
			e.Timestamp.Format(dbTimeLayout), boolToInt(e.MonthTotal), e.Sender,
			string(e.Classification), e.Amount, e.Description, e.AttachmentName,
			e.OCRText, e.PartyAmounts[0], e.PartyAmounts[1], e.Annotation,
			boolToInt(e.Disregarded))
		if err != nil {
			return fmt.Errorf("ledger.SaveAll: insert %s: %w", e.Key(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ledger.SaveAll: commit: %w", err)
	}
	return nil
}

// AppendCorrection implements Repository.
func (r *SQLiteRepository) AppendCorrection(ctx context.Context, rec CorrectionRecord) error {
	changes, err := json.Marshal(rec.Changes)
	if err != nil {
		return fmt.Errorf("ledger.AppendCorrection: marshal changes: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO corrections (id, entry_ts, command, changes, success, error, executed_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.EntryTimestamp.Format(dbTimeLayout), rec.Command, string(changes),
		boolToInt(rec.Success), rec.Error, rec.ExecutedAt.Format(dbTimeLayout),
		rec.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("ledger.AppendCorrection: %w", err)
	}
	return nil
}

// ListCorrections implements Repository.
func (r *SQLiteRepository) ListCorrections(ctx context.Context) ([]CorrectionRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, entry_ts, command, changes, success, error, executed_at, duration_ms
		FROM corrections
		ORDER BY executed_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("ledger.ListCorrections: %w", err)
	}
	defer rows.Close()

	var out []CorrectionRecord
	for rows.Next() {
		var (
			rec        CorrectionRecord
			entryTS    string
			changes    string
			success    int
			executedAt string
			durationMS int64
		)
		if err := rows.Scan(&rec.ID, &entryTS, &rec.Command, &changes, &success,
			&rec.Error, &executedAt, &durationMS); err != nil {
			return nil, fmt.Errorf("ledger.ListCorrections: scan: %w", err)
		}
		if rec.EntryTimestamp, err = time.Parse(dbTimeLayout, entryTS); err != nil {
			return nil, fmt.Errorf("ledger.ListCorrections: bad entry_ts %q: %w", entryTS, err)
		}
		if rec.ExecutedAt, err = time.Parse(dbTimeLayout, executedAt); err != nil {
			return nil, fmt.Errorf("ledger.ListCorrections: bad executed_at %q: %w", executedAt, err)
		}
		if err := json.Unmarshal([]byte(changes), &rec.Changes); err != nil {
			return nil, fmt.Errorf("ledger.ListCorrections: changes: %w", err)
		}
		rec.Success = success != 0
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger.ListCorrections: %w", err)
	}
	return out, nil
}

// Close implements Repository.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

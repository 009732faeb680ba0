package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/Rabiegha/b2b-email-campaign/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS prospects (
	id          TEXT PRIMARY KEY,
	firstname   TEXT NOT NULL,
	lastname    TEXT NOT NULL,
	company     TEXT NOT NULL,
	company_key TEXT NOT NULL,
	created_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id          TEXT PRIMARY KEY,
	company     TEXT NOT NULL,
	company_key TEXT NOT NULL,
	subject     TEXT NOT NULL,
	body        TEXT NOT NULL,
	created_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS email_suggestions (
	id          TEXT PRIMARY KEY,
	prospect_id TEXT NOT NULL UNIQUE REFERENCES prospects(id),
	domain      TEXT NOT NULL DEFAULT '',
	pattern     TEXT NOT NULL DEFAULT '',
	email       TEXT NOT NULL DEFAULT '',
	confidence  REAL NOT NULL DEFAULT 0,
	status      TEXT NOT NULL,
	debug_notes TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS outbox (
	id            TEXT PRIMARY KEY,
	prospect_id   TEXT NOT NULL,
	company       TEXT NOT NULL,
	company_key   TEXT NOT NULL,
	email         TEXT NOT NULL,
	firstname     TEXT NOT NULL,
	lastname      TEXT NOT NULL,
	subject       TEXT NOT NULL,
	body          TEXT NOT NULL,
	status        TEXT NOT NULL,
	sent_at       DATETIME,
	error_message TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL,
	updated_at    DATETIME NOT NULL,
	UNIQUE(prospect_id, email)
);

CREATE TABLE IF NOT EXISTS domain_cache (
	company_key TEXT PRIMARY KEY,
	domain      TEXT NOT NULL,
	method      TEXT NOT NULL,
	resolved_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS pattern_cache (
	company_key TEXT PRIMARY KEY,
	pattern     TEXT NOT NULL,
	email_count INTEGER NOT NULL,
	confidence  REAL NOT NULL,
	notes       TEXT NOT NULL DEFAULT '',
	inferred_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS bounce_seen (
	uid     TEXT PRIMARY KEY,
	seen_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_prospects_company_key ON prospects(company_key);
CREATE INDEX IF NOT EXISTS idx_messages_company_key ON messages(company_key);
CREATE INDEX IF NOT EXISTS idx_outbox_status ON outbox(status);
CREATE INDEX IF NOT EXISTS idx_outbox_email ON outbox(email);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateProspect(ctx context.Context, p model.Prospect) (*model.Prospect, error) {
	p.ID = uuid.New().String()
	p.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO prospects (id, firstname, lastname, company, company_key, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Firstname, p.Lastname, p.Company, p.CompanyKey, p.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert prospect")
	}
	return &p, nil
}

func (s *SQLiteStore) ListProspects(ctx context.Context) ([]model.Prospect, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, firstname, lastname, company, company_key, created_at FROM prospects ORDER BY created_at, id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list prospects")
	}
	defer rows.Close()
	return scanProspects(rows)
}

func (s *SQLiteStore) ListProspectsWithoutSuggestion(ctx context.Context, limit int) ([]model.Prospect, error) {
	q := `SELECT p.id, p.firstname, p.lastname, p.company, p.company_key, p.created_at
		FROM prospects p
		LEFT JOIN email_suggestions es ON es.prospect_id = p.id
		WHERE es.id IS NULL
		ORDER BY p.created_at, p.id`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list prospects without suggestion")
	}
	defer rows.Close()
	return scanProspects(rows)
}

func scanProspects(rows *sql.Rows) ([]model.Prospect, error) {
	var out []model.Prospect
	for rows.Next() {
		var p model.Prospect
		if err := rows.Scan(&p.ID, &p.Firstname, &p.Lastname, &p.Company, &p.CompanyKey, &p.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan prospect")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate prospects")
}

func (s *SQLiteStore) CreateMessage(ctx context.Context, m model.Message) (*model.Message, error) {
	m.ID = uuid.New().String()
	m.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, company, company_key, subject, body, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.Company, m.CompanyKey, m.Subject, m.Body, m.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert message")
	}
	return &m, nil
}

func (s *SQLiteStore) ListMessages(ctx context.Context) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, company, company_key, subject, body, created_at FROM messages ORDER BY created_at, id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list messages")
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.Company, &m.CompanyKey, &m.Subject, &m.Body, &m.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan message")
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate messages")
}

func (s *SQLiteStore) UpsertSuggestion(ctx context.Context, sg model.EmailSuggestion) (*model.EmailSuggestion, error) {
	sg.ID = uuid.New().String()
	sg.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO email_suggestions (id, prospect_id, domain, pattern, email, confidence, status, debug_notes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(prospect_id) DO UPDATE SET
			domain = excluded.domain,
			pattern = excluded.pattern,
			email = excluded.email,
			confidence = excluded.confidence,
			status = excluded.status,
			debug_notes = excluded.debug_notes,
			created_at = excluded.created_at`,
		sg.ID, sg.ProspectID, sg.Domain, sg.Pattern, sg.Email, sg.Confidence, string(sg.Status), sg.DebugNotes, sg.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: upsert suggestion for prospect %s", sg.ProspectID)
	}
	return &sg, nil
}

func (s *SQLiteStore) ListSuggestions(ctx context.Context) ([]model.SuggestionWithProspect, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT es.id, es.prospect_id, es.domain, es.pattern, es.email, es.confidence, es.status, es.debug_notes, es.created_at,
			p.firstname, p.lastname, p.company, p.company_key
		 FROM email_suggestions es
		 JOIN prospects p ON p.id = es.prospect_id
		 ORDER BY es.confidence DESC, es.created_at, es.id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list suggestions")
	}
	defer rows.Close()

	var out []model.SuggestionWithProspect
	for rows.Next() {
		var sw model.SuggestionWithProspect
		var status string
		if err := rows.Scan(&sw.ID, &sw.ProspectID, &sw.Domain, &sw.Pattern, &sw.Email, &sw.Confidence,
			&status, &sw.DebugNotes, &sw.CreatedAt,
			&sw.Firstname, &sw.Lastname, &sw.Company, &sw.CompanyKey); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan suggestion")
		}
		sw.Status = model.SuggestionStatus(status)
		out = append(out, sw)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate suggestions")
}

func (s *SQLiteStore) CreateOutboxRecord(ctx context.Context, r model.OutboxRecord) (*model.OutboxRecord, error) {
	r.ID = uuid.New().String()
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO outbox (id, prospect_id, company, company_key, email, firstname, lastname, subject, body, status, sent_at, error_message, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ProspectID, r.Company, r.CompanyKey, r.Email, r.Firstname, r.Lastname,
		r.Subject, r.Body, string(r.Status), nullTime(r.SentAt), r.ErrorMessage, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert outbox record")
	}
	return &r, nil
}

func (s *SQLiteStore) ListOutbox(ctx context.Context, filter OutboxFilter) ([]model.OutboxRecord, error) {
	q := `SELECT id, prospect_id, company, company_key, email, firstname, lastname, subject, body, status, sent_at, error_message, created_at, updated_at
		FROM outbox WHERE 1=1`
	var args []any
	if filter.Status != "" {
		q += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Search != "" {
		q += ` AND (company LIKE ? OR email LIKE ? OR subject LIKE ?)`
		like := "%" + filter.Search + "%"
		args = append(args, like, like, like)
	}
	q += ` ORDER BY created_at, id`
	if filter.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list outbox")
	}
	defer rows.Close()

	var out []model.OutboxRecord
	for rows.Next() {
		rec, err := scanOutbox(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate outbox")
}

func (s *SQLiteStore) UpdateOutboxStatus(ctx context.Context, id string, status model.OutboxStatus, errorMessage string, sentAt *time.Time) error {
	var current string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM outbox WHERE id = ?`, id).Scan(&current)
	if err == sql.ErrNoRows {
		return eris.Errorf("sqlite: outbox record %s not found", id)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: load outbox status %s", id)
	}
	if !model.CanTransition(model.OutboxStatus(current), status) {
		return eris.Errorf("sqlite: illegal outbox transition %s -> %s for %s", current, status, id)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE outbox SET status = ?, error_message = ?, sent_at = COALESCE(?, sent_at), updated_at = ? WHERE id = ? AND status = ?`,
		string(status), errorMessage, nullTime(sentAt), time.Now().UTC(), id, current,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update outbox status %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		// Status moved under us; the caller should re-read.
		return eris.Errorf("sqlite: concurrent status change on outbox record %s", id)
	}
	return nil
}

func (s *SQLiteStore) FindSentByEmail(ctx context.Context, email string) (*model.OutboxRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, prospect_id, company, company_key, email, firstname, lastname, subject, body, status, sent_at, error_message, created_at, updated_at
		 FROM outbox WHERE email = ? AND status = ? ORDER BY created_at LIMIT 1`,
		email, string(model.StatusSent),
	)
	rec, err := scanOutbox(row)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

func (s *SQLiteStore) CountOutboxByStatus(ctx context.Context) (map[model.OutboxStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM outbox GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count outbox")
	}
	defer rows.Close()

	counts := make(map[model.OutboxStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan count")
		}
		counts[model.OutboxStatus(status)] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: iterate counts")
}

func (s *SQLiteStore) GetDomainCache(ctx context.Context, companyKey string) (*model.DomainCacheEntry, error) {
	var e model.DomainCacheEntry
	var method string
	err := s.db.QueryRowContext(ctx,
		`SELECT company_key, domain, method, resolved_at FROM domain_cache WHERE company_key = ?`, companyKey,
	).Scan(&e.CompanyKey, &e.Domain, &method, &e.ResolvedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get domain cache %s", companyKey)
	}
	e.Method = model.ResolutionMethod(method)
	return &e, nil
}

func (s *SQLiteStore) SetDomainCache(ctx context.Context, e model.DomainCacheEntry) error {
	if e.ResolvedAt.IsZero() {
		e.ResolvedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO domain_cache (company_key, domain, method, resolved_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(company_key) DO UPDATE SET domain = excluded.domain, method = excluded.method, resolved_at = excluded.resolved_at`,
		e.CompanyKey, e.Domain, string(e.Method), e.ResolvedAt,
	)
	return eris.Wrapf(err, "sqlite: set domain cache %s", e.CompanyKey)
}

func (s *SQLiteStore) DeleteDomainCache(ctx context.Context, companyKey string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM domain_cache WHERE company_key = ?`, companyKey)
	return eris.Wrapf(err, "sqlite: delete domain cache %s", companyKey)
}

func (s *SQLiteStore) GetPatternCache(ctx context.Context, companyKey string) (*model.PatternCacheEntry, error) {
	var e model.PatternCacheEntry
	err := s.db.QueryRowContext(ctx,
		`SELECT company_key, pattern, email_count, confidence, notes, inferred_at FROM pattern_cache WHERE company_key = ?`, companyKey,
	).Scan(&e.CompanyKey, &e.Pattern, &e.EmailCount, &e.Confidence, &e.Notes, &e.InferredAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get pattern cache %s", companyKey)
	}
	return &e, nil
}

func (s *SQLiteStore) SetPatternCache(ctx context.Context, e model.PatternCacheEntry) error {
	if e.InferredAt.IsZero() {
		e.InferredAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pattern_cache (company_key, pattern, email_count, confidence, notes, inferred_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(company_key) DO UPDATE SET pattern = excluded.pattern, email_count = excluded.email_count,
			confidence = excluded.confidence, notes = excluded.notes, inferred_at = excluded.inferred_at`,
		e.CompanyKey, e.Pattern, e.EmailCount, e.Confidence, e.Notes, e.InferredAt,
	)
	return eris.Wrapf(err, "sqlite: set pattern cache %s", e.CompanyKey)
}

func (s *SQLiteStore) DeletePatternCache(ctx context.Context, companyKey string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pattern_cache WHERE company_key = ?`, companyKey)
	return eris.Wrapf(err, "sqlite: delete pattern cache %s", companyKey)
}

func (s *SQLiteStore) HasSeenBounce(ctx context.Context, uid string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM bounce_seen WHERE uid = ?`, uid).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: has seen bounce %s", uid)
	}
	return true, nil
}

func (s *SQLiteStore) MarkBounceSeen(ctx context.Context, uid string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bounce_seen (uid, seen_at) VALUES (?, ?) ON CONFLICT(uid) DO NOTHING`,
		uid, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: mark bounce seen %s", uid)
}

func (s *SQLiteStore) CountSeenBounces(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bounce_seen`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "sqlite: count seen bounces")
	}
	return n, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanOutbox(row scannable) (*model.OutboxRecord, error) {
	var r model.OutboxRecord
	var status string
	var sentAt sql.NullTime
	err := row.Scan(&r.ID, &r.ProspectID, &r.Company, &r.CompanyKey, &r.Email, &r.Firstname, &r.Lastname,
		&r.Subject, &r.Body, &status, &sentAt, &r.ErrorMessage, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "store: scan outbox record")
	}
	r.Status = model.OutboxStatus(status)
	if sentAt.Valid {
		t := sentAt.Time
		r.SentAt = &t
	}
	return &r, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

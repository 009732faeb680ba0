package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/Rabiegha/b2b-email-campaign/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS prospects (
	id          TEXT PRIMARY KEY,
	firstname   TEXT NOT NULL,
	lastname    TEXT NOT NULL,
	company     TEXT NOT NULL,
	company_key TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id          TEXT PRIMARY KEY,
	company     TEXT NOT NULL,
	company_key TEXT NOT NULL,
	subject     TEXT NOT NULL,
	body        TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS email_suggestions (
	id          TEXT PRIMARY KEY,
	prospect_id TEXT NOT NULL UNIQUE REFERENCES prospects(id),
	domain      TEXT NOT NULL DEFAULT '',
	pattern     TEXT NOT NULL DEFAULT '',
	email       TEXT NOT NULL DEFAULT '',
	confidence  DOUBLE PRECISION NOT NULL DEFAULT 0,
	status      TEXT NOT NULL,
	debug_notes TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL
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
	sent_at       TIMESTAMPTZ,
	error_message TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL,
	UNIQUE(prospect_id, email)
);

CREATE TABLE IF NOT EXISTS domain_cache (
	company_key TEXT PRIMARY KEY,
	domain      TEXT NOT NULL,
	method      TEXT NOT NULL,
	resolved_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS pattern_cache (
	company_key TEXT PRIMARY KEY,
	pattern     TEXT NOT NULL,
	email_count INTEGER NOT NULL,
	confidence  DOUBLE PRECISION NOT NULL,
	notes       TEXT NOT NULL DEFAULT '',
	inferred_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS bounce_seen (
	uid     TEXT PRIMARY KEY,
	seen_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_prospects_company_key ON prospects(company_key);
CREATE INDEX IF NOT EXISTS idx_messages_company_key ON messages(company_key);
CREATE INDEX IF NOT EXISTS idx_outbox_status ON outbox(status);
CREATE INDEX IF NOT EXISTS idx_outbox_email ON outbox(email);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateProspect(ctx context.Context, p model.Prospect) (*model.Prospect, error) {
	p.ID = uuid.New().String()
	p.CreatedAt = time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO prospects (id, firstname, lastname, company, company_key, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.Firstname, p.Lastname, p.Company, p.CompanyKey, p.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert prospect")
	}
	return &p, nil
}

func (s *PostgresStore) ListProspects(ctx context.Context) ([]model.Prospect, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, firstname, lastname, company, company_key, created_at FROM prospects ORDER BY created_at, id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list prospects")
	}
	defer rows.Close()
	return collectProspects(rows)
}

func (s *PostgresStore) ListProspectsWithoutSuggestion(ctx context.Context, limit int) ([]model.Prospect, error) {
	q := `SELECT p.id, p.firstname, p.lastname, p.company, p.company_key, p.created_at
		FROM prospects p
		LEFT JOIN email_suggestions es ON es.prospect_id = p.id
		WHERE es.id IS NULL
		ORDER BY p.created_at, p.id`
	var args []any
	if limit > 0 {
		q += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list prospects without suggestion")
	}
	defer rows.Close()
	return collectProspects(rows)
}

func collectProspects(rows pgx.Rows) ([]model.Prospect, error) {
	var out []model.Prospect
	for rows.Next() {
		var p model.Prospect
		if err := rows.Scan(&p.ID, &p.Firstname, &p.Lastname, &p.Company, &p.CompanyKey, &p.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan prospect")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate prospects")
}

func (s *PostgresStore) CreateMessage(ctx context.Context, m model.Message) (*model.Message, error) {
	m.ID = uuid.New().String()
	m.CreatedAt = time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO messages (id, company, company_key, subject, body, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID, m.Company, m.CompanyKey, m.Subject, m.Body, m.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert message")
	}
	return &m, nil
}

func (s *PostgresStore) ListMessages(ctx context.Context) ([]model.Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, company, company_key, subject, body, created_at FROM messages ORDER BY created_at, id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list messages")
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.Company, &m.CompanyKey, &m.Subject, &m.Body, &m.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan message")
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate messages")
}

func (s *PostgresStore) UpsertSuggestion(ctx context.Context, sg model.EmailSuggestion) (*model.EmailSuggestion, error) {
	sg.ID = uuid.New().String()
	sg.CreatedAt = time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO email_suggestions (id, prospect_id, domain, pattern, email, confidence, status, debug_notes, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (prospect_id) DO UPDATE SET
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
		return nil, eris.Wrapf(err, "postgres: upsert suggestion for prospect %s", sg.ProspectID)
	}
	return &sg, nil
}

func (s *PostgresStore) ListSuggestions(ctx context.Context) ([]model.SuggestionWithProspect, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT es.id, es.prospect_id, es.domain, es.pattern, es.email, es.confidence, es.status, es.debug_notes, es.created_at,
			p.firstname, p.lastname, p.company, p.company_key
		 FROM email_suggestions es
		 JOIN prospects p ON p.id = es.prospect_id
		 ORDER BY es.confidence DESC, es.created_at, es.id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list suggestions")
	}
	defer rows.Close()

	var out []model.SuggestionWithProspect
	for rows.Next() {
		var sw model.SuggestionWithProspect
		var status string
		if err := rows.Scan(&sw.ID, &sw.ProspectID, &sw.Domain, &sw.Pattern, &sw.Email, &sw.Confidence,
			&status, &sw.DebugNotes, &sw.CreatedAt,
			&sw.Firstname, &sw.Lastname, &sw.Company, &sw.CompanyKey); err != nil {
			return nil, eris.Wrap(err, "postgres: scan suggestion")
		}
		sw.Status = model.SuggestionStatus(status)
		out = append(out, sw)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate suggestions")
}

func (s *PostgresStore) CreateOutboxRecord(ctx context.Context, r model.OutboxRecord) (*model.OutboxRecord, error) {
	r.ID = uuid.New().String()
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now
	_, err := s.pool.Exec(ctx,
		`INSERT INTO outbox (id, prospect_id, company, company_key, email, firstname, lastname, subject, body, status, sent_at, error_message, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		r.ID, r.ProspectID, r.Company, r.CompanyKey, r.Email, r.Firstname, r.Lastname,
		r.Subject, r.Body, string(r.Status), r.SentAt, r.ErrorMessage, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert outbox record")
	}
	return &r, nil
}

func (s *PostgresStore) ListOutbox(ctx context.Context, filter OutboxFilter) ([]model.OutboxRecord, error) {
	q := `SELECT id, prospect_id, company, company_key, email, firstname, lastname, subject, body, status, sent_at, error_message, created_at, updated_at
		FROM outbox WHERE ($1 = '' OR status = $1)
		AND ($2 = '' OR company ILIKE '%' || $2 || '%' OR email ILIKE '%' || $2 || '%' OR subject ILIKE '%' || $2 || '%')
		ORDER BY created_at, id`
	args := []any{string(filter.Status), filter.Search}
	if filter.Limit > 0 {
		q += ` LIMIT $3`
		args = append(args, filter.Limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list outbox")
	}
	defer rows.Close()

	var out []model.OutboxRecord
	for rows.Next() {
		rec, err := scanOutbox(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan outbox record")
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate outbox")
}

func (s *PostgresStore) UpdateOutboxStatus(ctx context.Context, id string, status model.OutboxStatus, errorMessage string, sentAt *time.Time) error {
	var current string
	err := s.pool.QueryRow(ctx, `SELECT status FROM outbox WHERE id = $1`, id).Scan(&current)
	if eris.Is(err, pgx.ErrNoRows) {
		return eris.Errorf("postgres: outbox record %s not found", id)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: load outbox status %s", id)
	}
	if !model.CanTransition(model.OutboxStatus(current), status) {
		return eris.Errorf("postgres: illegal outbox transition %s -> %s for %s", current, status, id)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE outbox SET status = $1, error_message = $2, sent_at = COALESCE($3, sent_at), updated_at = $4 WHERE id = $5 AND status = $6`,
		string(status), errorMessage, sentAt, time.Now().UTC(), id, current,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update outbox status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: concurrent status change on outbox record %s", id)
	}
	return nil
}

func (s *PostgresStore) FindSentByEmail(ctx context.Context, email string) (*model.OutboxRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, prospect_id, company, company_key, email, firstname, lastname, subject, body, status, sent_at, error_message, created_at, updated_at
		 FROM outbox WHERE email = $1 AND status = $2 ORDER BY created_at LIMIT 1`,
		email, string(model.StatusSent),
	)
	rec, err := scanOutbox(row)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) || eris.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: find sent by email")
	}
	return rec, nil
}

func (s *PostgresStore) CountOutboxByStatus(ctx context.Context) (map[model.OutboxStatus]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM outbox GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count outbox")
	}
	defer rows.Close()

	counts := make(map[model.OutboxStatus]int)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan count")
		}
		counts[model.OutboxStatus(status)] = int(n)
	}
	return counts, eris.Wrap(rows.Err(), "postgres: iterate counts")
}

func (s *PostgresStore) GetDomainCache(ctx context.Context, companyKey string) (*model.DomainCacheEntry, error) {
	var e model.DomainCacheEntry
	var method string
	err := s.pool.QueryRow(ctx,
		`SELECT company_key, domain, method, resolved_at FROM domain_cache WHERE company_key = $1`, companyKey,
	).Scan(&e.CompanyKey, &e.Domain, &method, &e.ResolvedAt)
	if eris.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get domain cache %s", companyKey)
	}
	e.Method = model.ResolutionMethod(method)
	return &e, nil
}

func (s *PostgresStore) SetDomainCache(ctx context.Context, e model.DomainCacheEntry) error {
	if e.ResolvedAt.IsZero() {
		e.ResolvedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO domain_cache (company_key, domain, method, resolved_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (company_key) DO UPDATE SET domain = excluded.domain, method = excluded.method, resolved_at = excluded.resolved_at`,
		e.CompanyKey, e.Domain, string(e.Method), e.ResolvedAt,
	)
	return eris.Wrapf(err, "postgres: set domain cache %s", e.CompanyKey)
}

func (s *PostgresStore) DeleteDomainCache(ctx context.Context, companyKey string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM domain_cache WHERE company_key = $1`, companyKey)
	return eris.Wrapf(err, "postgres: delete domain cache %s", companyKey)
}

func (s *PostgresStore) GetPatternCache(ctx context.Context, companyKey string) (*model.PatternCacheEntry, error) {
	var e model.PatternCacheEntry
	err := s.pool.QueryRow(ctx,
		`SELECT company_key, pattern, email_count, confidence, notes, inferred_at FROM pattern_cache WHERE company_key = $1`, companyKey,
	).Scan(&e.CompanyKey, &e.Pattern, &e.EmailCount, &e.Confidence, &e.Notes, &e.InferredAt)
	if eris.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get pattern cache %s", companyKey)
	}
	return &e, nil
}

func (s *PostgresStore) SetPatternCache(ctx context.Context, e model.PatternCacheEntry) error {
	if e.InferredAt.IsZero() {
		e.InferredAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO pattern_cache (company_key, pattern, email_count, confidence, notes, inferred_at) VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (company_key) DO UPDATE SET pattern = excluded.pattern, email_count = excluded.email_count,
			confidence = excluded.confidence, notes = excluded.notes, inferred_at = excluded.inferred_at`,
		e.CompanyKey, e.Pattern, e.EmailCount, e.Confidence, e.Notes, e.InferredAt,
	)
	return eris.Wrapf(err, "postgres: set pattern cache %s", e.CompanyKey)
}

func (s *PostgresStore) DeletePatternCache(ctx context.Context, companyKey string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM pattern_cache WHERE company_key = $1`, companyKey)
	return eris.Wrapf(err, "postgres: delete pattern cache %s", companyKey)
}

func (s *PostgresStore) HasSeenBounce(ctx context.Context, uid string) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx, `SELECT 1 FROM bounce_seen WHERE uid = $1`, uid).Scan(&one)
	if eris.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "postgres: has seen bounce %s", uid)
	}
	return true, nil
}

func (s *PostgresStore) MarkBounceSeen(ctx context.Context, uid string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO bounce_seen (uid, seen_at) VALUES ($1, $2) ON CONFLICT (uid) DO NOTHING`,
		uid, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: mark bounce seen %s", uid)
}

func (s *PostgresStore) CountSeenBounces(ctx context.Context) (int, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM bounce_seen`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "postgres: count seen bounces")
	}
	return int(n), nil
}

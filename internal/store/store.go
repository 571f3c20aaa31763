// Package store implements the discovery pipeline's persistent store: a
// single SQLite file with idempotent upserts and migrations applied lazily
// at Open time (column-exists-or-add), matching §4.1 and §6 of the
// specification.
package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3"

	"github.com/foundersignal/pipeline/infrastructure/errors"
	"github.com/foundersignal/pipeline/infrastructure/logging"
	"github.com/foundersignal/pipeline/infrastructure/metrics"
	"github.com/foundersignal/pipeline/internal/model"
)

// columnSpec describes one column this module's model requires, used by the
// lazy migration to add any column missing from a legacy database file.
type columnSpec struct {
	name string
	ddl  string // e.g. "TEXT NOT NULL DEFAULT ''"
}

var schema = map[string][]columnSpec{
	"raw_posts": {
		{"id", "TEXT PRIMARY KEY"},
		{"source", "TEXT NOT NULL"},
		{"title", "TEXT NOT NULL DEFAULT ''"},
		{"body", "TEXT NOT NULL DEFAULT ''"},
		{"author", "TEXT NOT NULL DEFAULT ''"},
		{"url", "TEXT NOT NULL DEFAULT ''"},
		{"upvotes", "INTEGER NOT NULL DEFAULT 0"},
		{"comments_count", "INTEGER NOT NULL DEFAULT 0"},
		{"created_at", "TEXT NOT NULL"},
		{"channel", "TEXT NOT NULL DEFAULT ''"},
		{"subreddit", "TEXT NOT NULL DEFAULT ''"},
		{"sentiment_label", "TEXT NOT NULL DEFAULT ''"},
		{"sentiment_intensity", "REAL NOT NULL DEFAULT 0"},
		{"metadata", "TEXT NOT NULL DEFAULT '{}'"},
	},
	"signals": {
		{"post_id", "TEXT PRIMARY KEY"},
		{"score", "REAL NOT NULL DEFAULT 0"},
		{"reasoning", "TEXT NOT NULL DEFAULT ''"},
		{"detected_problems", "TEXT NOT NULL DEFAULT '[]'"},
		{"suggested_solutions", "TEXT NOT NULL DEFAULT '[]'"},
		{"engagement_score", "REAL NOT NULL DEFAULT 0"},
		{"validation_score", "REAL NOT NULL DEFAULT 0"},
		{"recency_score", "REAL NOT NULL DEFAULT 0"},
		{"composite_value", "REAL NOT NULL DEFAULT 0"},
		{"sentiment_label", "TEXT NOT NULL DEFAULT ''"},
		{"sentiment_intensity", "REAL NOT NULL DEFAULT 0"},
		{"analyzed_at", "TEXT NOT NULL DEFAULT ''"},
	},
	"opportunity_scores": {
		{"post_id", "TEXT PRIMARY KEY"},
		{"source", "TEXT NOT NULL"},
		{"final_score", "REAL NOT NULL DEFAULT 0"},
		{"pain_intensity", "REAL NOT NULL DEFAULT 0"},
		{"engagement_norm", "REAL NOT NULL DEFAULT 0"},
		{"validation_evidence", "REAL NOT NULL DEFAULT 0"},
		{"sentiment_intensity", "REAL NOT NULL DEFAULT 0"},
		{"recency", "REAL NOT NULL DEFAULT 0"},
		{"trend_momentum", "REAL NOT NULL DEFAULT 0"},
		{"market_signal", "REAL NOT NULL DEFAULT 0"},
		{"cross_source_bonus", "REAL NOT NULL DEFAULT 0"},
		{"weights", "TEXT NOT NULL DEFAULT '{}'"},
		{"computed_at", "TEXT NOT NULL"},
	},
	"leads": {
		{"id", "INTEGER PRIMARY KEY AUTOINCREMENT"},
		{"post_id", "TEXT NOT NULL"},
		{"contact_info", "TEXT NOT NULL DEFAULT ''"},
		{"intent_score", "REAL NOT NULL DEFAULT 0"},
		{"status", "TEXT NOT NULL DEFAULT ''"},
		{"created_at", "TEXT NOT NULL"},
	},
	"validation_reports": {
		{"id", "INTEGER PRIMARY KEY AUTOINCREMENT"},
		{"post_id", "TEXT NOT NULL"},
		{"summary", "TEXT NOT NULL DEFAULT ''"},
		{"confidence", "REAL NOT NULL DEFAULT 0"},
		{"created_at", "TEXT NOT NULL"},
	},
	"personas": {
		{"id", "INTEGER PRIMARY KEY AUTOINCREMENT"},
		{"name", "TEXT NOT NULL DEFAULT ''"},
		{"traits", "TEXT NOT NULL DEFAULT '{}'"},
		{"created_at", "TEXT NOT NULL"},
	},
}

// tableOrder fixes creation order for tables with no inter-table foreign
// keys enforced (advisory only, per §6).
var tableOrder = []string{
	"raw_posts", "signals", "opportunity_scores", "leads", "validation_reports", "personas",
}

// Store wraps a single-file SQLite database.
type Store struct {
	db     *sql.DB
	log    *logging.Logger
	metric *metrics.Metrics
}

// Open opens (creating if absent) the database file at path and applies the
// lazy migration described in §4.1.
func Open(path string, log *logging.Logger, metric *metrics.Metrics) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.StorageError("open", err)
	}
	db.SetMaxOpenConns(1) // §5: single connection per process, writers serialized

	s := &Store{db: db, log: log, metric: metric}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	for _, table := range tableOrder {
		cols := schema[table]
		if err := s.createTableIfMissing(table, cols); err != nil {
			return err
		}
		if err := s.addMissingColumns(table, cols); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) createTableIfMissing(table string, cols []columnSpec) error {
	defs := make([]string, 0, len(cols))
	for _, c := range cols {
		defs = append(defs, c.name+" "+c.ddl)
	}
	stmt := "CREATE TABLE IF NOT EXISTS " + table + " (" + strings.Join(defs, ", ") + ")"
	_, err := s.db.Exec(stmt)
	if err != nil {
		return errors.StorageError("create_table:"+table, err)
	}
	return nil
}

// addMissingColumns implements the "column-exists-or-add" lazy migration:
// for each column this module's model requires, add it if the table
// (possibly from a legacy file) doesn't already have it. Preserves legacy
// data rather than replacing the table.
func (s *Store) addMissingColumns(table string, cols []columnSpec) error {
	existing := map[string]bool{}
	rows, err := s.db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		return errors.StorageError("table_info:"+table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, colType string
		var notNull int
		var dflt sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return errors.StorageError("table_info_scan:"+table, err)
		}
		existing[name] = true
	}

	for _, c := range cols {
		if existing[c.name] {
			continue
		}
		// SQLite cannot ALTER TABLE ADD a PRIMARY KEY column; the PK columns
		// are always present from CREATE TABLE, so only non-PK columns reach
		// this path for legacy files.
		ddl := c.ddl
		if strings.Contains(strings.ToUpper(ddl), "PRIMARY KEY") {
			continue
		}
		stmt := "ALTER TABLE " + table + " ADD COLUMN " + c.name + " " + ddl
		if _, err := s.db.Exec(stmt); err != nil {
			return errors.StorageError("add_column:"+table+"."+c.name, err)
		}
	}
	return nil
}

func marshalJSON(v any) (string, error) {
	if v == nil {
		return "{}", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalJSON[T any](raw string, out *T) error {
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), out)
}

// SavePost upserts a post by id (insert-or-replace), per §4.1's idempotence
// contract and invariant 2.
func (s *Store) SavePost(ctx context.Context, p model.Post) error {
	start := time.Now()
	meta, err := marshalJSON(p.Metadata)
	if err != nil {
		return errors.ParseFailed("post_metadata", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO raw_posts (id, source, title, body, author, url, upvotes, comments_count,
			created_at, channel, subreddit, sentiment_label, sentiment_intensity, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source=excluded.source, title=excluded.title, body=excluded.body,
			author=excluded.author, url=excluded.url, upvotes=excluded.upvotes,
			comments_count=excluded.comments_count, created_at=excluded.created_at,
			channel=excluded.channel, subreddit=excluded.subreddit,
			sentiment_label=excluded.sentiment_label, sentiment_intensity=excluded.sentiment_intensity,
			metadata=excluded.metadata`,
		p.ID, p.Source, p.Title, p.Body, p.Author, p.URL, p.Upvotes, p.CommentsCount,
		p.CreatedAt.UTC().Format(time.RFC3339), p.Channel, p.Subreddit,
		string(p.SentimentLabel), p.SentimentIntensity, meta,
	)
	s.record("save_post", start, err)
	if err != nil {
		return errors.StorageError("save_post", err)
	}
	return nil
}

func (s *Store) record(op string, start time.Time, err error) {
	if s.metric == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metric.RecordStorageOperation("discovery-pipeline", op, status, time.Since(start))
}

func scanPost(row interface{ Scan(...any) error }) (model.Post, error) {
	var p model.Post
	var createdAt, metaRaw string
	var label string
	if err := row.Scan(&p.ID, &p.Source, &p.Title, &p.Body, &p.Author, &p.URL,
		&p.Upvotes, &p.CommentsCount, &createdAt, &p.Channel, &p.Subreddit,
		&label, &p.SentimentIntensity, &metaRaw); err != nil {
		return p, err
	}
	p.SentimentLabel = model.SentimentLabel(label)
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		p.CreatedAt = t
	}
	p.Metadata = map[string]any{}
	_ = unmarshalJSON(metaRaw, &p.Metadata)
	return p, nil
}

const postColumns = `id, source, title, body, author, url, upvotes, comments_count,
	created_at, channel, subreddit, sentiment_label, sentiment_intensity, metadata`

// GetPost returns the post with the given id, or (Post{}, false, nil) if absent.
func (s *Store) GetPost(ctx context.Context, id string) (model.Post, bool, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+postColumns+" FROM raw_posts WHERE id = ?", id)
	p, err := scanPost(row)
	if err == sql.ErrNoRows {
		return model.Post{}, false, nil
	}
	if err != nil {
		return model.Post{}, false, errors.StorageError("get_post", err)
	}
	return p, true, nil
}

// GetPosts returns posts most-recently-created first, optionally filtered
// by source, capped at limit (0 means unbounded).
func (s *Store) GetPosts(ctx context.Context, limit int, source string) ([]model.Post, error) {
	query := "SELECT " + postColumns + " FROM raw_posts"
	args := []any{}
	if source != "" {
		query += " WHERE source = ?"
		args = append(args, source)
	}
	query += " ORDER BY created_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.StorageError("get_posts", err)
	}
	defer rows.Close()

	var out []model.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, errors.StorageError("get_posts_scan", err)
		}
		out = append(out, p)
	}
	return out, nil
}

// SaveSignal upserts a PainScore keyed by post id.
func (s *Store) SaveSignal(ctx context.Context, postID string, ps model.PainScore) error {
	start := time.Now()
	problems, err := marshalJSON(ps.DetectedProblems)
	if err != nil {
		return errors.ParseFailed("detected_problems", err)
	}
	solutions, err := marshalJSON(ps.SuggestedSolutions)
	if err != nil {
		return errors.ParseFailed("suggested_solutions", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO signals (post_id, score, reasoning, detected_problems, suggested_solutions,
			engagement_score, validation_score, recency_score, composite_value,
			sentiment_label, sentiment_intensity, analyzed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(post_id) DO UPDATE SET
			score=excluded.score, reasoning=excluded.reasoning,
			detected_problems=excluded.detected_problems, suggested_solutions=excluded.suggested_solutions,
			engagement_score=excluded.engagement_score, validation_score=excluded.validation_score,
			recency_score=excluded.recency_score, composite_value=excluded.composite_value,
			sentiment_label=excluded.sentiment_label, sentiment_intensity=excluded.sentiment_intensity,
			analyzed_at=excluded.analyzed_at`,
		postID, ps.Score, ps.Reasoning, problems, solutions,
		ps.EngagementScore, ps.ValidationScore, ps.RecencyScore, ps.CompositeValue,
		string(ps.SentimentLabel), ps.SentimentIntensity, time.Now().UTC().Format(time.RFC3339),
	)
	s.record("save_signal", start, err)
	if err != nil {
		return errors.StorageError("save_signal", err)
	}
	return nil
}

// GetSignal returns the PainScore for a post id, or (PainScore{}, false, nil) if absent.
func (s *Store) GetSignal(ctx context.Context, postID string) (model.PainScore, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT score, reasoning, detected_problems, suggested_solutions,
			engagement_score, validation_score, recency_score, composite_value,
			sentiment_label, sentiment_intensity
		FROM signals WHERE post_id = ?`, postID)

	var ps model.PainScore
	var problems, solutions, label string
	err := row.Scan(&ps.Score, &ps.Reasoning, &problems, &solutions,
		&ps.EngagementScore, &ps.ValidationScore, &ps.RecencyScore, &ps.CompositeValue,
		&label, &ps.SentimentIntensity)
	if err == sql.ErrNoRows {
		return model.PainScore{}, false, nil
	}
	if err != nil {
		return model.PainScore{}, false, errors.StorageError("get_signal", err)
	}
	ps.SentimentLabel = model.SentimentLabel(label)
	_ = unmarshalJSON(problems, &ps.DetectedProblems)
	_ = unmarshalJSON(solutions, &ps.SuggestedSolutions)
	return ps, true, nil
}

// SaveOpportunityScore upserts an OpportunityScore keyed by post id, per
// invariant 3 (idempotent re-save returns the record exactly once).
func (s *Store) SaveOpportunityScore(ctx context.Context, sc model.OpportunityScore) error {
	start := time.Now()
	weights, err := marshalJSON(sc.Weights)
	if err != nil {
		return errors.ParseFailed("weights", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO opportunity_scores (post_id, source, final_score, pain_intensity,
			engagement_norm, validation_evidence, sentiment_intensity, recency,
			trend_momentum, market_signal, cross_source_bonus, weights, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(post_id) DO UPDATE SET
			source=excluded.source, final_score=excluded.final_score,
			pain_intensity=excluded.pain_intensity, engagement_norm=excluded.engagement_norm,
			validation_evidence=excluded.validation_evidence, sentiment_intensity=excluded.sentiment_intensity,
			recency=excluded.recency, trend_momentum=excluded.trend_momentum,
			market_signal=excluded.market_signal, cross_source_bonus=excluded.cross_source_bonus,
			weights=excluded.weights, computed_at=excluded.computed_at`,
		sc.PostID, sc.Source, sc.FinalScore, sc.PainIntensity, sc.EngagementNorm,
		sc.ValidationEvidence, sc.SentimentIntensity, sc.Recency, sc.TrendMomentum,
		sc.MarketSignal, sc.CrossSourceBonus, weights, sc.ComputedAt.UTC().Format(time.RFC3339),
	)
	s.record("save_opportunity_score", start, err)
	if err != nil {
		return errors.StorageError("save_opportunity_score", err)
	}
	if s.metric != nil {
		s.metric.RecordOpportunityScore("discovery-pipeline", sc.Source)
	}
	return nil
}

// GetOpportunityScores returns scores with final_score >= minScore, most
// recently computed first, capped at limit (0 means unbounded).
func (s *Store) GetOpportunityScores(ctx context.Context, limit int, minScore float64) ([]model.OpportunityScore, error) {
	query := `SELECT post_id, source, final_score, pain_intensity, engagement_norm,
		validation_evidence, sentiment_intensity, recency, trend_momentum, market_signal,
		cross_source_bonus, weights, computed_at
		FROM opportunity_scores WHERE final_score >= ? ORDER BY computed_at DESC`
	args := []any{minScore}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.StorageError("get_opportunity_scores", err)
	}
	defer rows.Close()

	var out []model.OpportunityScore
	for rows.Next() {
		var sc model.OpportunityScore
		var weightsRaw, computedAt string
		if err := rows.Scan(&sc.PostID, &sc.Source, &sc.FinalScore, &sc.PainIntensity,
			&sc.EngagementNorm, &sc.ValidationEvidence, &sc.SentimentIntensity, &sc.Recency,
			&sc.TrendMomentum, &sc.MarketSignal, &sc.CrossSourceBonus, &weightsRaw, &computedAt); err != nil {
			return nil, errors.StorageError("get_opportunity_scores_scan", err)
		}
		_ = unmarshalJSON(weightsRaw, &sc.Weights)
		if t, err := time.Parse(time.RFC3339, computedAt); err == nil {
			sc.ComputedAt = t
		}
		out = append(out, sc)
	}
	return out, nil
}

// SaveLead inserts a Lead, assigning an autoincrement id.
func (s *Store) SaveLead(ctx context.Context, l model.Lead) (int64, error) {
	start := time.Now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO leads (post_id, contact_info, intent_score, status, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		l.PostID, l.ContactInfo, l.IntentScore, l.Status, time.Now().UTC().Format(time.RFC3339),
	)
	s.record("save_lead", start, err)
	if err != nil {
		return 0, errors.StorageError("save_lead", err)
	}
	return res.LastInsertId()
}

// GetLeads returns leads most recently created first, capped at limit (0
// means unbounded).
func (s *Store) GetLeads(ctx context.Context, limit int) ([]model.Lead, error) {
	query := "SELECT id, post_id, contact_info, intent_score, status, created_at FROM leads ORDER BY created_at DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.StorageError("get_leads", err)
	}
	defer rows.Close()

	var out []model.Lead
	for rows.Next() {
		var l model.Lead
		var createdAt string
		if err := rows.Scan(&l.ID, &l.PostID, &l.ContactInfo, &l.IntentScore, &l.Status, &createdAt); err != nil {
			return nil, errors.StorageError("get_leads_scan", err)
		}
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			l.CreatedAt = t
		}
		out = append(out, l)
	}
	return out, nil
}

// SaveReport inserts a ValidationReport, assigning an autoincrement id.
func (s *Store) SaveReport(ctx context.Context, r model.ValidationReport) (int64, error) {
	start := time.Now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO validation_reports (post_id, summary, confidence, created_at)
		VALUES (?, ?, ?, ?)`,
		r.PostID, r.Summary, r.Confidence, time.Now().UTC().Format(time.RFC3339),
	)
	s.record("save_report", start, err)
	if err != nil {
		return 0, errors.StorageError("save_report", err)
	}
	return res.LastInsertId()
}

// GetReports returns validation reports most recently created first, capped
// at limit (0 means unbounded).
func (s *Store) GetReports(ctx context.Context, limit int) ([]model.ValidationReport, error) {
	query := "SELECT id, post_id, summary, confidence, created_at FROM validation_reports ORDER BY created_at DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.StorageError("get_reports", err)
	}
	defer rows.Close()

	var out []model.ValidationReport
	for rows.Next() {
		var r model.ValidationReport
		var createdAt string
		if err := rows.Scan(&r.ID, &r.PostID, &r.Summary, &r.Confidence, &createdAt); err != nil {
			return nil, errors.StorageError("get_reports_scan", err)
		}
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			r.CreatedAt = t
		}
		out = append(out, r)
	}
	return out, nil
}

// CountMatchingTerms counts posts from source (excluding excludePostID)
// created in (since, until] whose title or body contains any of terms.
// Backs the Scoring Engine's trend_momentum dimension (§4.6).
func (s *Store) CountMatchingTerms(ctx context.Context, source string, terms []string, since, until time.Time, excludePostID string) (int, error) {
	if len(terms) == 0 {
		return 0, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT title, body FROM raw_posts
		WHERE source = ? AND id != ? AND created_at > ? AND created_at <= ?`,
		source, excludePostID, since.UTC().Format(time.RFC3339), until.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, errors.StorageError("count_matching_terms", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var title, body string
		if err := rows.Scan(&title, &body); err != nil {
			return 0, errors.StorageError("count_matching_terms_scan", err)
		}
		if containsAnyTerm(strings.ToLower(title+" "+body), terms) {
			count++
		}
	}
	return count, nil
}

// DistinctOtherSourcesMatching counts distinct sources other than
// excludeSource with a post (other than excludePostID) created after since
// whose title or body contains any of terms. Backs the cross_source_bonus
// dimension (§4.6).
func (s *Store) DistinctOtherSourcesMatching(ctx context.Context, excludeSource string, terms []string, since time.Time, excludePostID string) (int, error) {
	if len(terms) == 0 {
		return 0, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT source, title, body FROM raw_posts
		WHERE source != ? AND id != ? AND created_at > ?`,
		excludeSource, excludePostID, since.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, errors.StorageError("distinct_other_sources", err)
	}
	defer rows.Close()

	matched := map[string]bool{}
	for rows.Next() {
		var source, title, body string
		if err := rows.Scan(&source, &title, &body); err != nil {
			return 0, errors.StorageError("distinct_other_sources_scan", err)
		}
		if matched[source] {
			continue
		}
		if containsAnyTerm(strings.ToLower(title+" "+body), terms) {
			matched[source] = true
		}
	}
	return len(matched), nil
}

func containsAnyTerm(haystack string, terms []string) bool {
	for _, t := range terms {
		if t == "" {
			continue
		}
		if strings.Contains(haystack, strings.ToLower(t)) {
			return true
		}
	}
	return false
}

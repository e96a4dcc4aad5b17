// Package store persists prompts in PostgreSQL. Ownership checks for edits
// and deletes run inside a transaction that locks the row first, so a
// concurrent delete cannot slip between the check and the write.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/prompt"
	apperrors "github.com/Adithya-Monish-Kumar-K/promptvault/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/promptvault/pkg/postgres"
)

// DefaultListLimit caps listings when the filter does not set a limit.
const DefaultListLimit = 50

const columns = `id, user_id, title, prompt_text, category, tags, is_public, copies, created_at, updated_at`

type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

func New(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "prompt-store"),
	}
}

// ListPublic returns public prompts matching filter, most copied first.
func (s *Store) ListPublic(ctx context.Context, filter prompt.ListFilter) ([]*prompt.Prompt, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT `+columns+` FROM prompts
		WHERE is_public
		  AND ($1 = '' OR $1 = ANY(tags))
		  AND ($2 = '' OR category = $2)
		  AND ($3 = '' OR title ILIKE $3 ESCAPE '\' OR prompt_text ILIKE $3 ESCAPE '\')
		ORDER BY copies DESC, created_at DESC
		LIMIT $4`,
		filter.Tag, filter.Category, likePattern(filter.Query), limit)
	if err != nil {
		return nil, fmt.Errorf("listing public prompts: %w", err)
	}
	return collect(rows)
}

// Snapshot returns every public prompt in listing order. It feeds the
// in-memory search index.
func (s *Store) Snapshot(ctx context.Context) ([]*prompt.Prompt, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT `+columns+` FROM prompts WHERE is_public ORDER BY copies DESC, created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("loading prompt snapshot: %w", err)
	}
	return collect(rows)
}

// Get returns one prompt regardless of visibility.
func (s *Store) Get(ctx context.Context, id string) (*prompt.Prompt, error) {
	if uuid.Validate(id) != nil {
		return nil, apperrors.NotFound(id)
	}
	p, err := scan(s.db.DB.QueryRowContext(ctx,
		`SELECT `+columns+` FROM prompts WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting prompt %s: %w", id, err)
	}
	return p, nil
}

// ListByOwner returns the prompts created by userID, newest first.
func (s *Store) ListByOwner(ctx context.Context, userID string) ([]*prompt.Prompt, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT `+columns+` FROM prompts WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing prompts of %s: %w", userID, err)
	}
	return collect(rows)
}

// Create inserts a validated prompt. owner may be empty for anonymous
// submissions.
func (s *Store) Create(ctx context.Context, owner string, req *prompt.CreateRequest) (*prompt.Prompt, error) {
	public := true
	if req.IsPublic != nil {
		public = *req.IsPublic
	}
	p, err := scan(s.db.DB.QueryRowContext(ctx,
		`INSERT INTO prompts (user_id, title, prompt_text, category, tags, is_public)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+columns,
		nullableString(owner), req.Title, req.Body, req.Category, pq.Array(req.Tags), public))
	if err != nil {
		return nil, fmt.Errorf("inserting prompt: %w", err)
	}
	s.logger.Info("prompt created", "prompt_id", p.ID, "owner", owner, "category", p.Category)
	return p, nil
}

// Update applies the non-nil fields of req when owner owns the prompt.
func (s *Store) Update(ctx context.Context, id, owner string, req *prompt.UpdateRequest) (*prompt.Prompt, error) {
	if uuid.Validate(id) != nil {
		return nil, apperrors.NotFound(id)
	}
	var updated *prompt.Prompt
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		if err := lockOwned(ctx, tx, id, owner); err != nil {
			return err
		}
		var tags any
		if req.Tags != nil {
			tags = pq.Array(*req.Tags)
		}
		p, err := scan(tx.QueryRowContext(ctx,
			`UPDATE prompts SET
				title       = COALESCE($2, title),
				prompt_text = COALESCE($3, prompt_text),
				category    = COALESCE($4, category),
				tags        = COALESCE($5, tags),
				is_public   = COALESCE($6, is_public),
				updated_at  = NOW()
			WHERE id = $1
			RETURNING `+columns,
			id, req.Title, req.Body, req.Category, tags, req.IsPublic))
		if err != nil {
			return fmt.Errorf("updating prompt %s: %w", id, err)
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes the prompt when owner owns it.
func (s *Store) Delete(ctx context.Context, id, owner string) error {
	if uuid.Validate(id) != nil {
		return apperrors.NotFound(id)
	}
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		if err := lockOwned(ctx, tx, id, owner); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM prompts WHERE id = $1`, id); err != nil {
			return fmt.Errorf("deleting prompt %s: %w", id, err)
		}
		return nil
	})
}

// IncrementCopies bumps the copy counter and returns the new value.
func (s *Store) IncrementCopies(ctx context.Context, id string) (int, error) {
	if uuid.Validate(id) != nil {
		return 0, apperrors.NotFound(id)
	}
	var copies int
	err := s.db.DB.QueryRowContext(ctx,
		`UPDATE prompts SET copies = copies + 1 WHERE id = $1 RETURNING copies`, id).Scan(&copies)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, apperrors.NotFound(id)
	}
	if err != nil {
		return 0, fmt.Errorf("incrementing copies of %s: %w", id, err)
	}
	return copies, nil
}

// Import inserts prompts as given, including their copy counts, in one
// transaction. Owners are left empty.
func (s *Store) Import(ctx context.Context, prompts []*prompt.Prompt) (int, error) {
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		for _, p := range prompts {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO prompts (title, prompt_text, category, tags, is_public, copies)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				p.Title, p.Body, p.Category, pq.Array(p.Tags), p.IsPublic, p.Copies); err != nil {
				return fmt.Errorf("importing %q: %w", p.Title, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(prompts), nil
}

// Count returns the number of stored prompts.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM prompts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting prompts: %w", err)
	}
	return n, nil
}

// lockOwned locks the prompt row and checks that owner owns it.
func lockOwned(ctx context.Context, tx *sql.Tx, id, owner string) error {
	var current sql.NullString
	err := tx.QueryRowContext(ctx,
		`SELECT user_id FROM prompts WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NotFound(id)
	}
	if err != nil {
		return fmt.Errorf("locking prompt %s: %w", id, err)
	}
	if owner == "" || !current.Valid || current.String != owner {
		return apperrors.Forbidden(id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (*prompt.Prompt, error) {
	var (
		p     prompt.Prompt
		owner sql.NullString
		tags  pq.StringArray
	)
	if err := row.Scan(&p.ID, &owner, &p.Title, &p.Body, &p.Category, &tags,
		&p.IsPublic, &p.Copies, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.UserID = owner.String
	p.Tags = []string(tags)
	if p.Tags == nil {
		p.Tags = []string{}
	}
	return &p, nil
}

func collect(rows *sql.Rows) ([]*prompt.Prompt, error) {
	defer rows.Close()
	out := make([]*prompt.Prompt, 0)
	for rows.Next() {
		p, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning prompt: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating prompts: %w", err)
	}
	return out, nil
}

// likePattern turns a free-text query into an ILIKE pattern, escaping the
// wildcard characters. An empty query yields an empty pattern.
func likePattern(q string) string {
	q = strings.TrimSpace(q)
	if q == "" {
		return ""
	}
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(q) + "%"
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

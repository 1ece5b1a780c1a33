package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/promptvault/promptvault-server/internal/store"
)

// promptColumns must match the scan order in scanPrompt.
const promptColumns = `id, owner_id, text, tags, created_at`

// created_at is stored as Unix nanoseconds so ordering is exact.
func scanPrompt(scanner interface{ Scan(dest ...any) error }) (*store.Record, error) {
	var (
		rec       store.Record
		tagsJSON  string
		createdAt int64
	)
	if err := scanner.Scan(&rec.ID, &rec.Data.OwnerID, &rec.Data.Text, &tagsJSON, &createdAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tagsJSON), &rec.Data.Tags); err != nil {
		return nil, fmt.Errorf("decode tags for %s: %w", rec.ID, err)
	}
	rec.Data.CreatedAt = time.Unix(0, createdAt).UTC()
	return &rec, nil
}

// InsertPromptRecord stores a new prompt record.
func (s *Store) InsertPromptRecord(ctx context.Context, rec *store.Record) error {
	tags := rec.Data.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO prompts (id, owner_id, text, tags, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		rec.ID,
		rec.Data.OwnerID,
		rec.Data.Text,
		string(tagsJSON),
		rec.Data.CreatedAt.UnixNano(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return store.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// GetPromptRecord retrieves a prompt by ID.
// Returns store.ErrNotFound if it does not exist.
func (s *Store) GetPromptRecord(ctx context.Context, id string) (*store.Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+promptColumns+` FROM prompts WHERE id = ?`, id)
	rec, err := scanPrompt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return rec, err
}

// DeletePromptRecord removes a prompt by ID.
// Returns store.ErrNotFound if nothing was deleted.
func (s *Store) DeletePromptRecord(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM prompts WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListPromptRecords returns the owner's prompts, newest first.
func (s *Store) ListPromptRecords(ctx context.Context, ownerID string) ([]*store.Record, error) {
	return s.queryPrompts(ctx, `
		SELECT `+promptColumns+` FROM prompts
		WHERE owner_id = ?
		ORDER BY created_at DESC, id DESC`, ownerID)
}

// ListAllPromptRecords returns every prompt, used to rebuild the search index.
func (s *Store) ListAllPromptRecords(ctx context.Context) ([]*store.Record, error) {
	return s.queryPrompts(ctx, `
		SELECT `+promptColumns+` FROM prompts
		ORDER BY created_at DESC, id DESC`)
}

// CountPromptRecords returns the number of stored prompts.
func (s *Store) CountPromptRecords(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM prompts`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) queryPrompts(ctx context.Context, query string, args ...any) ([]*store.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*store.Record
	for rows.Next() {
		rec, err := scanPrompt(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

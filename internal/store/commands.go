package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mkjhawar/NewAvanues-sub007/internal/types"
)

// UpsertCommand writes one generated command and its aliases. Keyed on
// (element_hash, command_text), so re-synthesizing an unchanged element is a
// no-op apart from the updated_at stamp.
func UpsertCommand(q DBTX, c *types.Command) error {
	if c.ElementHash == "" || c.Text == "" {
		return fmt.Errorf("command element hash and text are required")
	}
	now := time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	ok, err := ElementExists(q, c.ElementHash)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("command for element %s: %w", c.ElementHash, ErrParentMissing)
	}

	_, err = q.Exec(`
		INSERT INTO commands (element_hash, command_text, action_type, confidence, usage_count,
			approved, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(element_hash, command_text) DO UPDATE SET
			action_type = excluded.action_type,
			confidence = excluded.confidence,
			updated_at = excluded.updated_at
	`, c.ElementHash, c.Text, string(c.Action), c.Confidence, c.UsageCount,
		c.Approved, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert command: %w", err)
	}

	var id int64
	if err := q.QueryRow(`SELECT id FROM commands WHERE element_hash = ? AND command_text = ?`,
		c.ElementHash, c.Text).Scan(&id); err != nil {
		return fmt.Errorf("failed to read back command id: %w", err)
	}
	c.ID = id

	for _, alias := range c.Synonyms {
		if _, err := q.Exec(`
			INSERT INTO command_aliases (command_id, alias) VALUES (?, ?)
			ON CONFLICT(command_id, alias) DO NOTHING
		`, id, alias); err != nil {
			return fmt.Errorf("failed to upsert alias %q: %w", alias, err)
		}
	}
	return nil
}

const commandColumns = `c.id, c.element_hash, c.command_text, c.action_type, c.confidence,
	c.usage_count, c.approved, c.created_at, c.updated_at`

func scanCommand(scan func(dest ...any) error) (*types.Command, error) {
	var c types.Command
	var action string
	err := scan(&c.ID, &c.ElementHash, &c.Text, &action, &c.Confidence,
		&c.UsageCount, &c.Approved, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Action = types.Action(action)
	return &c, nil
}

func (s *Store) loadAliases(c *types.Command) error {
	rows, err := s.db.Query("SELECT alias FROM command_aliases WHERE command_id = ? ORDER BY alias", c.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return err
		}
		c.Synonyms = append(c.Synonyms, a)
	}
	return rows.Err()
}

// CommandsForElement lists the commands bound to one element
func (s *Store) CommandsForElement(elementHash string) ([]*types.Command, error) {
	rows, err := s.db.Query(`SELECT `+commandColumns+` FROM commands c
		WHERE c.element_hash = ? ORDER BY c.confidence DESC, c.command_text`, elementHash)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.collectCommands(rows)
}

// CommandsForApp lists every command owned by an application's elements
func (s *Store) CommandsForApp(appID string) ([]*types.Command, error) {
	rows, err := s.db.Query(`SELECT `+commandColumns+` FROM commands c
		JOIN elements e ON e.element_hash = c.element_hash
		WHERE e.app_id = ? ORDER BY c.confidence DESC, c.command_text`, appID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.collectCommands(rows)
}

// AllCommands lists every command in the store (similarity scan input)
func (s *Store) AllCommands() ([]*types.Command, error) {
	rows, err := s.db.Query(`SELECT ` + commandColumns + ` FROM commands c ORDER BY c.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.collectCommands(rows)
}

func (s *Store) collectCommands(rows *sql.Rows) ([]*types.Command, error) {
	var out []*types.Command
	for rows.Next() {
		c, err := scanCommand(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan command: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, c := range out {
		if err := s.loadAliases(c); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// CommandByExactText finds a command whose primary text matches exactly
// (normalized by the caller). Highest confidence wins on ties.
func (s *Store) CommandByExactText(text string) (*types.Command, error) {
	row := s.db.QueryRow(`SELECT `+commandColumns+` FROM commands c
		WHERE c.command_text = ? ORDER BY c.confidence DESC LIMIT 1`, text)
	c, err := scanCommand(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadAliases(c); err != nil {
		return nil, err
	}
	return c, nil
}

// CommandByAlias finds a command through its synonym set
func (s *Store) CommandByAlias(alias string) (*types.Command, error) {
	row := s.db.QueryRow(`SELECT `+commandColumns+` FROM commands c
		JOIN command_aliases a ON a.command_id = c.id
		WHERE a.alias = ? ORDER BY c.confidence DESC LIMIT 1`, alias)
	c, err := scanCommand(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadAliases(c); err != nil {
		return nil, err
	}
	return c, nil
}

// TouchCommand bumps the usage counter after a successful dispatch
func (s *Store) TouchCommand(id int64) error {
	_, err := s.db.Exec(`UPDATE commands SET usage_count = usage_count + 1, updated_at = ? WHERE id = ?`,
		time.Now(), id)
	return err
}

// SetCommandApproved flips the user-approval flag
func (s *Store) SetCommandApproved(id int64, approved bool) error {
	res, err := s.db.Exec(`UPDATE commands SET approved = ?, updated_at = ? WHERE id = ?`,
		approved, time.Now(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

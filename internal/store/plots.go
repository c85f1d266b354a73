package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ResolvePlot looks up a plot by its normalized code (e.g. "2A"). A missing
// plot is not an error; found reports whether the code matched.
func (s *Store) ResolvePlot(ctx context.Context, code string) (uuid.UUID, bool, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM plots WHERE plot_code = $1`, code,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("resolve plot %q: %w", code, err)
	}
	return id, true, nil
}

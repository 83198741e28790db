package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/tokend/internal/auth/domain"
)

type scopesRepo struct {
	db dbtx
}

func scanScope(s rowScanner) (domain.Scope, error) {
	var (
		sc        domain.Scope
		resources string
		createdAt int64
	)
	if err := s.Scan(&sc.Name, &sc.DisplayName, &resources, &createdAt); err != nil {
		return domain.Scope{}, mapNotFound(err)
	}
	sc.Resources = splitAndFilter(resources)
	sc.CreatedAt = fromUnix(createdAt)
	return sc, nil
}

func (r *scopesRepo) GetScopeByName(ctx context.Context, name string) (domain.Scope, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT name, display_name, resources, created_at FROM scopes WHERE name = ?`, name)
	return scanScope(row)
}

func (r *scopesRepo) ListScopes(ctx context.Context) ([]domain.Scope, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT name, display_name, resources, created_at FROM scopes ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Scope
	for rows.Next() {
		sc, err := scanScope(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (r *scopesRepo) CreateScope(ctx context.Context, s domain.Scope) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO scopes (name, display_name, resources, created_at) VALUES (?, ?, ?, ?)`,
		s.Name, s.DisplayName, joinFields(s.Resources), unix(s.CreatedAt),
	)
	return mapConstraint(err)
}

package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/tokend/internal/auth/domain"
)

type clientsRepo struct {
	db dbtx
}

const clientColumns = `id, secret_hash, display_name, grant_types, scopes, redirect_uris,
	requires_pkce, consent_type, created_at, updated_at`

func scanClient(s rowScanner) (domain.Client, error) {
	var (
		c            domain.Client
		grantTypes   string
		scopes       string
		redirectURIs string
		requiresPKCE int64
		consentType  string
		createdAt    int64
		updatedAt    int64
	)
	err := s.Scan(&c.ID, &c.SecretHash, &c.DisplayName, &grantTypes, &scopes, &redirectURIs,
		&requiresPKCE, &consentType, &createdAt, &updatedAt)
	if err != nil {
		return domain.Client{}, mapNotFound(err)
	}
	for _, g := range splitAndFilter(grantTypes) {
		c.AllowedGrantTypes = append(c.AllowedGrantTypes, domain.GrantType(g))
	}
	c.AllowedScopes = splitAndFilter(scopes)
	c.RedirectURIs = splitAndFilter(redirectURIs)
	c.RequiresPKCE = requiresPKCE != 0
	c.ConsentType = domain.ConsentType(consentType)
	c.CreatedAt = fromUnix(createdAt)
	c.UpdatedAt = fromUnix(updatedAt)
	return c, nil
}

func (r *clientsRepo) GetClientByID(ctx context.Context, id string) (domain.Client, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = ?`, id)
	return scanClient(row)
}

func (r *clientsRepo) ListClients(ctx context.Context) ([]domain.Client, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+clientColumns+` FROM clients ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *clientsRepo) CreateClient(ctx context.Context, c domain.Client) error {
	if c.ConsentType == "" {
		c.ConsentType = domain.ConsentImplicit
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO clients (`+clientColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.SecretHash, c.DisplayName, joinFields(c.AllowedGrantTypes),
		joinFields(c.AllowedScopes), joinFields(c.RedirectURIs),
		boolToInt(c.RequiresPKCE), string(c.ConsentType),
		unix(c.CreatedAt), unix(c.UpdatedAt),
	)
	return mapConstraint(err)
}

func (r *clientsRepo) DeleteClient(ctx context.Context, id string) error {
	return mustAffect(r.db.ExecContext(ctx, `DELETE FROM clients WHERE id = ?`, id))
}

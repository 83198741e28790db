package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aussiebroadwan/tokend/internal/auth/domain"
	"github.com/aussiebroadwan/tokend/internal/auth/store"
	"github.com/aussiebroadwan/tokend/internal/auth/telemetry"
	"github.com/aussiebroadwan/tokend/pkg/cryptox"
	"github.com/aussiebroadwan/tokend/pkg/idx"
	"github.com/aussiebroadwan/tokend/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultAccessTokenTTL   = 30 * time.Minute
	DefaultIdentityTokenTTL = 30 * time.Minute
	DefaultRefreshTokenTTL  = 24 * time.Hour
)

// TokenIssuer signs access and identity tokens and mints opaque refresh
// tokens. It keeps no per-request state.
type TokenIssuer struct {
	Keys      *jwtx.KeyManager
	Store     store.Store
	Telemetry *telemetry.Telemetry
	Issuer    string

	AccessTTL   time.Duration
	IdentityTTL time.Duration
	RefreshTTL  time.Duration
}

// IssueOptions controls the optional tokens of one issuance.
type IssueOptions struct {
	// Refresh mints a refresh token for UserID in FamilyID. An empty
	// FamilyID starts a new family.
	Refresh  bool
	UserID   string
	FamilyID string

	// RefreshTokens persists the refresh token, typically a transaction's
	// repository. Defaults to the issuer's store.
	RefreshTokens store.RefreshTokens
}

// Issue signs the access token, an identity token when openid was granted,
// and a refresh token when asked for.
func (i *TokenIssuer) Issue(ctx context.Context, p domain.ClaimsPrincipal, now time.Time, opts IssueOptions) (domain.TokenResult, error) {
	pending, err := i.Prepare(ctx, p, now, opts)
	if err != nil {
		return domain.TokenResult{}, err
	}
	return i.Persist(ctx, pending, opts.RefreshTokens)
}

// PendingIssuance holds signed tokens whose refresh token, if any, has not
// been stored yet. Nothing is handed out until Persist succeeds.
type PendingIssuance struct {
	result  domain.TokenResult
	refresh *domain.RefreshToken
}

// Prepare signs every token of one issuance and mints the refresh token
// without writing to the store.
func (i *TokenIssuer) Prepare(ctx context.Context, p domain.ClaimsPrincipal, now time.Time, opts IssueOptions) (PendingIssuance, error) {
	access, err := i.SignAccessToken(ctx, p, now)
	if err != nil {
		return PendingIssuance{}, err
	}
	pending := PendingIssuance{result: domain.TokenResult{AccessToken: access, Scopes: p.Scopes}}

	if p.HasScope(domain.ScopeOpenID) {
		id, err := i.SignIdentityToken(ctx, p, now)
		if err != nil {
			return PendingIssuance{}, err
		}
		pending.result.IdentityToken = &id
	}

	if opts.Refresh {
		issued, record, err := i.MintRefreshToken(p, opts.UserID, opts.FamilyID, now)
		if err != nil {
			return PendingIssuance{}, err
		}
		pending.result.RefreshToken = &issued
		pending.refresh = &record
	}
	return pending, nil
}

// Persist stores the refresh token of a prepared issuance in repo, the
// issuer's store when nil, and returns the tokens.
func (i *TokenIssuer) Persist(ctx context.Context, pending PendingIssuance, repo store.RefreshTokens) (domain.TokenResult, error) {
	if pending.refresh != nil {
		if repo == nil {
			repo = i.Store.RefreshTokens()
		}
		if err := repo.CreateRefreshToken(ctx, *pending.refresh); err != nil {
			return domain.TokenResult{}, fmt.Errorf("store refresh token: %w", err)
		}
	}

	res := pending.result
	i.Telemetry.RecordTokenIssued(ctx, string(res.AccessToken.Kind))
	if res.IdentityToken != nil {
		i.Telemetry.RecordTokenIssued(ctx, string(res.IdentityToken.Kind))
	}
	if res.RefreshToken != nil {
		i.Telemetry.RecordTokenIssued(ctx, string(res.RefreshToken.Kind))
	}
	return res, nil
}

// SignAccessToken carries every claim routed to the access token. The aud
// claim is the resources the granted scopes resolve to.
func (i *TokenIssuer) SignAccessToken(ctx context.Context, p domain.ClaimsPrincipal, now time.Time) (domain.IssuedToken, error) {
	ttl := orDefault(i.AccessTTL, DefaultAccessTokenTTL)
	tok := domain.IssuedToken{
		Kind:      domain.TokenAccess,
		ID:        jwtx.NewJTI(),
		Subject:   p.Subject,
		ClientID:  p.ClientID,
		Scopes:    p.Scopes,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}

	claims := i.baseClaims(tok)
	if len(p.Resources) > 0 {
		claims["aud"] = p.Resources
	}
	claims[jwtx.ClaimScope] = strings.Join(p.Scopes, " ")
	claims[jwtx.ClaimClientID] = p.ClientID
	putClaims(claims, p.ClaimsFor(domain.DestinationAccessToken))

	return i.sign(ctx, tok, claims)
}

// SignIdentityToken carries only claims routed to the identity token and
// is addressed to the client.
func (i *TokenIssuer) SignIdentityToken(ctx context.Context, p domain.ClaimsPrincipal, now time.Time) (domain.IssuedToken, error) {
	ttl := orDefault(i.IdentityTTL, DefaultIdentityTokenTTL)
	tok := domain.IssuedToken{
		Kind:      domain.TokenIdentity,
		ID:        jwtx.NewJTI(),
		Subject:   p.Subject,
		ClientID:  p.ClientID,
		Scopes:    p.Scopes,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}

	claims := i.baseClaims(tok)
	claims["aud"] = p.ClientID
	claims["azp"] = p.ClientID
	putClaims(claims, p.ClaimsFor(domain.DestinationIdentityToken))

	return i.sign(ctx, tok, claims)
}

// MintRefreshToken creates an opaque refresh token and the record to
// persist for it. Only the fingerprint is stored.
func (i *TokenIssuer) MintRefreshToken(p domain.ClaimsPrincipal, userID, familyID string, now time.Time) (domain.IssuedToken, domain.RefreshToken, error) {
	value, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return domain.IssuedToken{}, domain.RefreshToken{}, fmt.Errorf("generate refresh token: %w", err)
	}
	if familyID == "" {
		familyID = newFamilyID()
	}
	ttl := orDefault(i.RefreshTTL, DefaultRefreshTokenTTL)

	record := domain.RefreshToken{
		ID:        idx.New().String(),
		TokenHash: cryptox.FingerprintToken(value),
		FamilyID:  familyID,
		ClientID:  p.ClientID,
		UserID:    userID,
		Scopes:    p.Scopes,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	issued := domain.IssuedToken{
		Kind:      domain.TokenRefresh,
		ID:        record.ID,
		Value:     value,
		Subject:   p.Subject,
		ClientID:  p.ClientID,
		Scopes:    p.Scopes,
		IssuedAt:  now,
		ExpiresAt: record.ExpiresAt,
		FamilyID:  familyID,
	}
	return issued, record, nil
}

func (i *TokenIssuer) baseClaims(tok domain.IssuedToken) jwt.MapClaims {
	return jwt.MapClaims{
		"iss":             i.Issuer,
		jwtx.ClaimSubject: tok.Subject,
		"iat":             tok.IssuedAt.Unix(),
		"nbf":             tok.IssuedAt.Unix(),
		"exp":             tok.ExpiresAt.Unix(),
		"jti":             tok.ID,
	}
}

func (i *TokenIssuer) sign(ctx context.Context, tok domain.IssuedToken, claims jwt.MapClaims) (domain.IssuedToken, error) {
	if err := ctx.Err(); err != nil {
		return domain.IssuedToken{}, err
	}
	signer := i.Keys.GetSigner()
	if signer == nil {
		return domain.IssuedToken{}, jwtx.ErrNoKey
	}
	value, err := signer.Sign(claims)
	if err != nil {
		return domain.IssuedToken{}, fmt.Errorf("sign %s: %w", tok.Kind, err)
	}
	tok.Value = value
	return tok, nil
}

// putClaims writes claims into the JWT body. Repeated claim types become
// arrays in insertion order.
func putClaims(dst jwt.MapClaims, claims []domain.Claim) {
	grouped := make(map[string][]string)
	var order []string
	for _, c := range claims {
		if _, ok := grouped[c.Type]; !ok {
			order = append(order, c.Type)
		}
		grouped[c.Type] = append(grouped[c.Type], c.Value)
	}
	for _, typ := range order {
		if _, reserved := dst[typ]; reserved {
			continue
		}
		values := grouped[typ]
		if len(values) == 1 {
			dst[typ] = values[0]
		} else {
			dst[typ] = values
		}
	}
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// newFamilyID starts a refresh-token family that is not tied to a code.
func newFamilyID() string { return uuid.NewString() }

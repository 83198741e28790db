// Package redis keeps authorization codes in Redis so that every server
// instance sees the same single-use ledger.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aussiebroadwan/tokend/internal/auth/domain"
	"github.com/aussiebroadwan/tokend/internal/auth/store"
	goredis "github.com/redis/go-redis/v9"
)

const (
	DefaultKeyPrefix = "tokend:"

	keyTypeCode     = "code"
	keyTypeRedeemed = "redeemed"
)

// redeemScript marks a code redeemed only when the code still exists and no
// redemption marker is present. The marker expires with the code.
//
// Returns 1 when this caller won, 0 when already redeemed, -1 when missing.
var redeemScript = goredis.NewScript(`
local ttl = redis.call('PTTL', KEYS[1])
if ttl == -2 then
	return -1
end
local ok
if ttl > 0 then
	ok = redis.call('SET', KEYS[2], ARGV[1], 'NX', 'PX', ttl)
else
	ok = redis.call('SET', KEYS[2], ARGV[1], 'NX')
end
if ok then
	return 1
end
return 0
`)

// CodeStore implements store.AuthorizationCodes on Redis. Codes are stored as
// JSON under their hash and expire on their own.
type CodeStore struct {
	client    goredis.UniversalClient
	keyPrefix string
}

var _ store.AuthorizationCodes = (*CodeStore)(nil)

// storedCode is the JSON form of a domain.AuthorizationCode.
type storedCode struct {
	ID                  string   `json:"id"`
	ClientID            string   `json:"client_id"`
	UserID              string   `json:"user_id"`
	RedirectURI         string   `json:"redirect_uri"`
	Scopes              []string `json:"scopes"`
	CodeChallenge       string   `json:"code_challenge,omitempty"`
	CodeChallengeMethod string   `json:"code_challenge_method,omitempty"`
	ExpiresAt           int64    `json:"expires_at"`
	CreatedAt           int64    `json:"created_at"`
}

// New connects to addr and verifies the connection.
func New(ctx context.Context, addr, password string, db int) (*CodeStore, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: connect: %w", err)
	}
	return NewWithClient(client, DefaultKeyPrefix), nil
}

// NewWithClient wraps a pre-configured client, as used with miniredis in tests.
func NewWithClient(client goredis.UniversalClient, keyPrefix string) *CodeStore {
	return &CodeStore{client: client, keyPrefix: keyPrefix}
}

func (s *CodeStore) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

func (s *CodeStore) Close() error { return s.client.Close() }

func (s *CodeStore) key(kind, hash string) string {
	return s.keyPrefix + kind + ":" + hash
}

func (s *CodeStore) CreateAuthorizationCode(ctx context.Context, code domain.AuthorizationCode) error {
	if code.CreatedAt.IsZero() {
		code.CreatedAt = time.Now()
	}
	data, err := json.Marshal(storedCode{
		ID:                  code.ID,
		ClientID:            code.ClientID,
		UserID:              code.UserID,
		RedirectURI:         code.RedirectURI,
		Scopes:              code.Scopes,
		CodeChallenge:       code.CodeChallenge,
		CodeChallengeMethod: code.CodeChallengeMethod,
		ExpiresAt:           code.ExpiresAt.Unix(),
		CreatedAt:           code.CreatedAt.Unix(),
	})
	if err != nil {
		return fmt.Errorf("redis: marshal code: %w", err)
	}

	ttl := max(time.Until(code.ExpiresAt), time.Second)
	ok, err := s.client.SetNX(ctx, s.key(keyTypeCode, code.CodeHash), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("redis: store code: %w", err)
	}
	if !ok {
		return store.ErrAlreadyExists
	}
	return nil
}

func (s *CodeStore) GetAuthorizationCodeByHash(ctx context.Context, hash string) (domain.AuthorizationCode, error) {
	data, err := s.client.Get(ctx, s.key(keyTypeCode, hash)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return domain.AuthorizationCode{}, store.ErrNotFound
		}
		return domain.AuthorizationCode{}, fmt.Errorf("redis: get code: %w", err)
	}

	var sc storedCode
	if err := json.Unmarshal(data, &sc); err != nil {
		return domain.AuthorizationCode{}, fmt.Errorf("redis: unmarshal code: %w", err)
	}
	code := domain.AuthorizationCode{
		ID:                  sc.ID,
		CodeHash:            hash,
		ClientID:            sc.ClientID,
		UserID:              sc.UserID,
		RedirectURI:         sc.RedirectURI,
		Scopes:              sc.Scopes,
		CodeChallenge:       sc.CodeChallenge,
		CodeChallengeMethod: sc.CodeChallengeMethod,
		ExpiresAt:           time.Unix(sc.ExpiresAt, 0).UTC(),
		CreatedAt:           time.Unix(sc.CreatedAt, 0).UTC(),
	}

	redeemed, err := s.client.Get(ctx, s.key(keyTypeRedeemed, hash)).Result()
	switch {
	case errors.Is(err, goredis.Nil):
	case err != nil:
		return domain.AuthorizationCode{}, fmt.Errorf("redis: get redemption: %w", err)
	default:
		if sec, perr := strconv.ParseInt(redeemed, 10, 64); perr == nil {
			at := time.Unix(sec, 0).UTC()
			code.RedeemedAt = &at
		}
	}
	return code, nil
}

func (s *CodeStore) RedeemAuthorizationCode(ctx context.Context, hash string, now time.Time) error {
	res, err := redeemScript.Run(ctx, s.client,
		[]string{s.key(keyTypeCode, hash), s.key(keyTypeRedeemed, hash)},
		now.Unix(),
	).Int()
	if err != nil {
		return fmt.Errorf("redis: redeem code: %w", err)
	}
	switch res {
	case 1:
		return nil
	case 0:
		return store.ErrAlreadyRedeemed
	default:
		return store.ErrNotFound
	}
}

// DeleteExpiredAuthorizationCodes is a no-op: Redis expires the keys itself.
func (s *CodeStore) DeleteExpiredAuthorizationCodes(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

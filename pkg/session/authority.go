package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL はトークンの既定の有効期間。
const DefaultTTL = 30 * time.Minute

// Token は発行したセッショントークン。
type Token struct {
	// Value は署名済みのトークン文字列。
	Value string
	// Subject はトークンが表すユーザーID。
	Subject string
	// IssuedAt は発行時刻。
	IssuedAt time.Time
	// ExpiresAt は有効期限。この時刻以降は無効になる。
	ExpiresAt time.Time
}

// claims はトークンのペイロード。
type claims struct {
	jwt.RegisteredClaims
	// User はユーザーID。
	User string `json:"usr"`
}

// signingKey は鍵IDと秘密鍵の組。
type signingKey struct {
	id     string
	secret []byte
}

// keyring は現在の署名鍵と、ローテーション直前の鍵。
type keyring struct {
	current  *signingKey
	previous *signingKey
}

// Authority はセッショントークンを発行・検証する。複数のゴルーチンから同時に使用できる。
type Authority struct {
	// keys は署名鍵。Rotateで差し替える。
	keys atomic.Pointer[keyring]
	// rotateMu はRotate同士の競合を防ぐ。
	rotateMu sync.Mutex
	// ttl はトークンの有効期間。
	ttl time.Duration
	// issuer はissクレームに設定する値。空なら設定も検証もしない。
	issuer string
	// now は現在時刻を返す。テストで差し替える。
	now func() time.Time
}

// Option はAuthorityの設定を変更する関数。
type Option func(*Authority)

// WithTTL はトークンの有効期間を設定する。
func WithTTL(ttl time.Duration) Option {
	return func(a *Authority) {
		if ttl > 0 {
			a.ttl = ttl
		}
	}
}

// WithClock は現在時刻の取得関数を設定する。
func WithClock(now func() time.Time) Option {
	return func(a *Authority) {
		if now != nil {
			a.now = now
		}
	}
}

// WithIssuer はissクレームを設定する。検証時も一致を確認する。
func WithIssuer(issuer string) Option {
	return func(a *Authority) {
		a.issuer = issuer
	}
}

// NewAuthority は秘密鍵secretで署名するAuthorityを生成する。secretが空ならエラーを返す。
func NewAuthority(secret []byte, opts ...Option) (*Authority, error) {
	key, err := newSigningKey(secret)
	if err != nil {
		return nil, err
	}

	a := &Authority{
		ttl: DefaultTTL,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.keys.Store(&keyring{current: key})
	return a, nil
}

// TTL はトークンの有効期間を返す。
func (a *Authority) TTL() time.Duration {
	return a.ttl
}

// Issue はsubjectのトークンを現在の署名鍵で発行する。
func (a *Authority) Issue(subject string) (Token, error) {
	if subject == "" {
		return Token{}, errors.New("ユーザーIDが空のトークンは発行できません")
	}

	key := a.keys.Load().current
	now := a.now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
			Issuer:    a.issuer,
		},
		User: subject,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	token.Header["kid"] = key.id
	signed, err := token.SignedString(key.secret)
	if err != nil {
		return Token{}, fmt.Errorf("トークンの署名に失敗: %w", err)
	}

	return Token{
		Value:     signed,
		Subject:   subject,
		IssuedAt:  c.IssuedAt.Time,
		ExpiresAt: c.ExpiresAt.Time,
	}, nil
}

// Validate はトークンを検証し、ユーザーIDを返す。
// 署名が検証でき、かつ現在時刻が有効期限より前の場合のみ有効とする。
func (a *Authority) Validate(value string) (string, error) {
	if value == "" {
		return "", ErrMalformed
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	var c claims
	_, err := jwt.ParseWithClaims(value, &c, a.keyFunc(a.keys.Load()), opts...)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "", ErrExpired
	case err != nil:
		return "", fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	if c.User == "" {
		return "", ErrMissingSubject
	}
	return c.User, nil
}

// Authenticate はValidateをmiddleware.Authenticatorとして使えるようにする。
func (a *Authority) Authenticate(_ context.Context, token string) (string, error) {
	return a.Validate(token)
}

// Rotate は署名鍵をnewSecretに差し替える。直前の鍵は検証用に引き続き受け付ける。
// 発行中のトークンは読み込み済みの鍵で署名される。
func (a *Authority) Rotate(newSecret []byte) error {
	key, err := newSigningKey(newSecret)
	if err != nil {
		return err
	}

	a.rotateMu.Lock()
	defer a.rotateMu.Unlock()
	old := a.keys.Load()
	a.keys.Store(&keyring{current: key, previous: old.current})
	return nil
}

// keyFunc はヘッダーのkidに対応する検証鍵を返す。kidが無ければ現在の鍵を使う。
func (a *Authority) keyFunc(ring *keyring) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" || kid == ring.current.id {
			return ring.current.secret, nil
		}
		if ring.previous != nil && kid == ring.previous.id {
			return ring.previous.secret, nil
		}
		return nil, fmt.Errorf("未知の鍵IDです: %q", kid)
	}
}

// newSigningKey は秘密鍵から鍵IDを導出する。
func newSigningKey(secret []byte) (*signingKey, error) {
	if len(secret) == 0 {
		return nil, errors.New("署名鍵が空です")
	}
	sum := sha256.Sum256(secret)
	return &signingKey{
		id:     hex.EncodeToString(sum[:8]),
		secret: append([]byte(nil), secret...),
	}, nil
}

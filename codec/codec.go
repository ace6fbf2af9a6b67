package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

// Kind distinguishes the token families sealed by a [Codec]. A token sealed
// as one kind never opens as another.
type Kind string

const (
	// KindAccess marks short-lived access tokens.
	KindAccess Kind = "access"
	// KindRefresh marks long-lived refresh tokens.
	KindRefresh Kind = "refresh"
)

const (
	envelopeVersion byte = 1
	keySize              = 32
	// MinSecretSize is the shortest signing or encryption secret accepted by [New].
	MinSecretSize = 16

	signKeyInfo    = "authtokens/sign"
	encryptKeyInfo = "authtokens/encrypt"
)

var additionalData = []byte("authtokens/v1")

// ErrInvalidToken is returned by [Codec.Open] for malformed, tampered,
// expired, or wrong-kind tokens. The underlying cause is wrapped.
var ErrInvalidToken = errors.New("invalid token")

// ErrExpired is joined with [ErrInvalidToken] when the only fault of a token
// is that its expiry has passed.
var ErrExpired = errors.New("token expired")

// Config carries the secrets and clock for a [Codec]. Secrets are copied and
// expanded into keys once; later mutation of the slices has no effect.
type Config struct {
	SignSecret    []byte
	EncryptSecret []byte
	Issuer        string
	Now           func() time.Time
}

// Claims is the claim set carried inside a sealed token. Subject holds the
// principal ID; Value holds the refresh opaque value and is empty for
// access tokens.
type Claims struct {
	Kind  Kind   `json:"typ"`
	Value string `json:"val,omitempty"`
	jwt.RegisteredClaims
}

// PrincipalID returns the subject the token was sealed for.
func (c *Claims) PrincipalID() string {
	if c == nil {
		return ""
	}
	return c.Subject
}

// Codec seals claim sets into opaque strings and opens them again.
//
// The inner layer is an HS256 JWT, the outer layer AES-256-GCM, so the bearer
// can neither read nor alter the claims. A Codec is safe for concurrent use.
type Codec struct {
	signKey []byte
	aead    cipher.AEAD
	issuer  string
	now     func() time.Time
}

// New derives the signing and encryption keys from cfg and returns a ready
// [Codec].
func New(cfg Config) (*Codec, error) {
	if len(cfg.SignSecret) < MinSecretSize {
		return nil, fmt.Errorf("sign secret must be at least %d bytes", MinSecretSize)
	}
	if len(cfg.EncryptSecret) < MinSecretSize {
		return nil, fmt.Errorf("encrypt secret must be at least %d bytes", MinSecretSize)
	}

	signKey, err := deriveKey(cfg.SignSecret, signKeyInfo)
	if err != nil {
		return nil, err
	}
	encKey, err := deriveKey(cfg.EncryptSecret, encryptKeyInfo)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Codec{
		signKey: signKey,
		aead:    aead,
		issuer:  cfg.Issuer,
		now:     now,
	}, nil
}

func deriveKey(secret []byte, info string) ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("derive %s key: %w", info, err)
	}
	return key, nil
}

// Seal signs claims with expiry expiresAt and encrypts the result.
//
// IssuedAt and Issuer are set by the codec; ID gets a fresh UUID when empty.
func (c *Codec) Seal(claims Claims, expiresAt time.Time) (string, error) {
	if claims.Subject == "" {
		return "", errors.New("claims subject is required")
	}
	if claims.Kind != KindAccess && claims.Kind != KindRefresh {
		return "", fmt.Errorf("unsupported token kind %q", claims.Kind)
	}

	claims.IssuedAt = jwt.NewNumericDate(c.now())
	claims.ExpiresAt = jwt.NewNumericDate(expiresAt)
	if c.issuer != "" {
		claims.Issuer = c.issuer
	}
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.signKey)
	if err != nil {
		return "", fmt.Errorf("sign claims: %w", err)
	}

	nonceSize := c.aead.NonceSize()
	out := make([]byte, 1+nonceSize, 1+nonceSize+len(signed)+c.aead.Overhead())
	out[0] = envelopeVersion
	nonce := out[1 : 1+nonceSize]
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	out = c.aead.Seal(out, nonce, []byte(signed), additionalData)

	return base64.RawURLEncoding.EncodeToString(out), nil
}

// Open decrypts and verifies token, requiring it to be of the given kind and
// unexpired according to the codec clock. Every failure wraps [ErrInvalidToken];
// an expired but otherwise valid token also wraps [ErrExpired].
func (c *Codec) Open(token string, kind Kind) (*Claims, error) {
	claims, expired, err := c.Inspect(token, kind)
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, ErrExpired)
	}
	return claims, nil
}

// Inspect is [Codec.Open] without the expiry check: an authentic token of the
// right kind is returned with expired set when its exp has passed.
func (c *Codec) Inspect(token string, kind Kind) (claims *Claims, expired bool, err error) {
	if token == "" {
		return nil, false, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, false, fmt.Errorf("%w: decode envelope: %v", ErrInvalidToken, err)
	}

	nonceSize := c.aead.NonceSize()
	if len(raw) < 1+nonceSize+c.aead.Overhead() {
		return nil, false, fmt.Errorf("%w: envelope too short", ErrInvalidToken)
	}
	if raw[0] != envelopeVersion {
		return nil, false, fmt.Errorf("%w: unknown envelope version %d", ErrInvalidToken, raw[0])
	}

	nonce := raw[1 : 1+nonceSize]
	plaintext, err := c.aead.Open(nil, nonce, raw[1+nonceSize:], additionalData)
	if err != nil {
		return nil, false, fmt.Errorf("%w: decrypt envelope: %v", ErrInvalidToken, err)
	}

	// Time-based claims are checked below against the codec clock.
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	parsed, err := parser.ParseWithClaims(string(plaintext), &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return c.signKey, nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, false, fmt.Errorf("%w: %v", ErrInvalidToken, jwt.ErrTokenInvalidClaims)
	}
	if claims.Kind != kind {
		return nil, false, fmt.Errorf("%w: expected %s token, got %q", ErrInvalidToken, kind, claims.Kind)
	}
	if claims.Subject == "" {
		return nil, false, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	if c.issuer != "" && claims.Issuer != c.issuer {
		return nil, false, fmt.Errorf("%w: %v", ErrInvalidToken, jwt.ErrTokenInvalidIssuer)
	}
	if claims.ExpiresAt == nil {
		return nil, false, fmt.Errorf("%w: %v", ErrInvalidToken, jwt.ErrTokenRequiredClaimMissing)
	}

	return claims, !c.now().Before(claims.ExpiresAt.Time), nil
}

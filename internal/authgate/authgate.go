// Package authgate implements the remote gateway's auth gate (§6, §10):
// a bearer token presented as either the leading URL-path segment or a
// dedicated header, plus passcode hashing for `auth reset-passcode`.
package authgate

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// HeaderName is the dedicated header carrying the access token.
const HeaderName = "X-CACD-Token"

// ErrMissingToken, ErrInvalidToken, and ErrRevokedToken distinguish "no
// credential presented" from "credential presented but wrong" from
// "credential presented was once valid but has since been rotated out"
// (§6: missing/invalid → 401, revoked → 403).
var (
	ErrMissingToken = fmt.Errorf("missing access token")
	ErrInvalidToken = fmt.Errorf("invalid access token")
	ErrRevokedToken = fmt.Errorf("revoked access token")
)

// Gate checks incoming requests against a configured access token. revoked
// holds every access token superseded by `auth regenerate-token`, so a
// client still presenting one of them is told it was revoked (403) rather
// than that it was simply wrong (401).
type Gate struct {
	token   string
	revoked map[string]struct{}
}

// New creates a Gate for the given configured accessToken. Any revoked
// tokens (prior accessToken values superseded by regeneration) are passed
// as additional arguments.
func New(token string, revoked ...string) *Gate {
	g := &Gate{token: token}
	for _, r := range revoked {
		if r == "" {
			continue
		}
		if g.revoked == nil {
			g.revoked = make(map[string]struct{}, len(revoked))
		}
		g.revoked[r] = struct{}{}
	}
	return g
}

// CheckToken extracts the presented token from a header or a leading
// path segment and accepts it either as the raw configured secret
// (constant-time compared) or as a JWT bearer token signed with that
// secret via IssueToken. Raw comparison keeps a statically-configured
// accessToken usable as-is (including the one `regenerate-token` prints);
// JWT verification is what `auth show`-minted bearer tokens present.
func (g *Gate) CheckToken(r *http.Request) error {
	presented := r.Header.Get(HeaderName)
	if presented == "" {
		if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			presented = strings.TrimPrefix(auth, "Bearer ")
		}
	}
	if presented == "" {
		presented = leadingPathSegment(r.URL.Path)
	}
	if presented == "" {
		return ErrMissingToken
	}
	if g.token == "" {
		return ErrInvalidToken
	}
	if subtle.ConstantTimeCompare([]byte(presented), []byte(g.token)) == 1 {
		return nil
	}
	if g.verifyJWTWithSecret(presented, g.token) == nil {
		return nil
	}
	if g.isRevoked(presented) {
		return ErrRevokedToken
	}
	return ErrInvalidToken
}

// isRevoked reports whether presented is a token this Gate's configured
// accessToken has superseded — either the raw revoked secret itself, or a
// bearer JWT minted from it (IssueToken's HMAC secret is the access token,
// so a JWT signed with a revoked secret still verifies against that
// secret even though it is no longer the current one).
func (g *Gate) isRevoked(presented string) bool {
	for old := range g.revoked {
		if subtle.ConstantTimeCompare([]byte(presented), []byte(old)) == 1 {
			return true
		}
		if g.verifyJWTWithSecret(presented, old) == nil {
			return true
		}
	}
	return false
}

// accessClaims is the JWT payload minted by IssueToken.
type accessClaims struct {
	jwt.RegisteredClaims
}

// IssueToken mints a bearer JWT signed with the configured access token
// as the HMAC secret. A zero ttl means the token never expires, matching
// the CLI's `auth show` use case where the user copies a durable token.
func (g *Gate) IssueToken(ttl time.Duration) (string, error) {
	if g.token == "" {
		return "", fmt.Errorf("issue token: no access token configured")
	}
	claims := accessClaims{jwt.RegisteredClaims{
		Issuer:   "cacd",
		IssuedAt: jwt.NewNumericDate(time.Now()),
	}}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(ttl))
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte(g.token))
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

func (g *Gate) verifyJWTWithSecret(presented, secret string) error {
	_, err := jwt.ParseWithClaims(presented, &accessClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	return err
}

// Middleware wraps next, rejecting requests that fail CheckToken and
// never invoking next (no session state is mutated on a protocol/auth
// error, §7). Missing/invalid tokens get 401; a token this Gate
// recognizes as superseded by regeneration gets 403 (§6).
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch g.CheckToken(r) {
		case nil:
			next.ServeHTTP(w, r)
		case ErrRevokedToken:
			http.Error(w, `{"error":"revoked"}`, http.StatusForbidden)
		default:
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		}
	})
}

func leadingPathSegment(path string) string {
	trimmed := strings.TrimPrefix(path, "/")
	if trimmed == "" {
		return ""
	}
	seg := trimmed
	if idx := strings.IndexByte(trimmed, '/'); idx >= 0 {
		seg = trimmed[:idx]
	}
	// A bare /api/... path carries no token segment.
	if seg == "api" {
		return ""
	}
	return seg
}

// GenerateToken returns a new random URL-safe access token.
func GenerateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashPasscode bcrypt-hashes a user-chosen passcode for storage in the
// persisted document's passcodeHash field.
func HashPasscode(passcode string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(passcode), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash passcode: %w", err)
	}
	return string(hash), nil
}

// VerifyPasscode reports whether passcode matches the stored hash.
func VerifyPasscode(hash, passcode string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(passcode)) == nil
}

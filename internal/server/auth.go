package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/ShovalB85/RasApp/internal/domain"
)

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
	// Now is used for token timestamps; defaults to time.Now.
	Now func() time.Time
}

func (c AuthConfig) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c AuthConfig) ttl() time.Duration {
	if c.TokenTTL > 0 {
		return c.TokenTTL
	}
	return 7 * 24 * time.Hour
}

type Principal struct {
	PersonID string
	Role     domain.Role
	Expires  time.Time
}

type principalKey struct{}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func principalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

func actorIDFromContext(ctx context.Context) (string, huma.StatusError) {
	if p, ok := principalFromContext(ctx); ok && p.PersonID != "" {
		return p.PersonID, nil
	}
	return "", newAPIError(http.StatusUnauthorized, "unauthenticated", "authentication required", nil)
}

type jwtClaims struct {
	jwt.RegisteredClaims
	Role domain.Role `json:"role,omitempty"`
}

// issueToken signs an HS256 token for the person. The role claim is
// informational; every request re-reads the person from the store.
func issueToken(cfg AuthConfig, p domain.Person) (string, time.Time, error) {
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return "", time.Time{}, errors.New("jwt secret not configured")
	}
	now := cfg.now().UTC()
	exp := now.Add(cfg.ttl())
	claims := jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			Issuer:    "rasapp",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Role: p.Role,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return token, exp, nil
}

func authenticateJWT(token string, cfg AuthConfig) (Principal, error) {
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return Principal{}, errors.New("jwt secret not configured")
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(cfg.now),
		jwt.WithExpirationRequired(),
	)
	claims := &jwtClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(cfg.JWTSecret), nil
	})
	if err != nil {
		return Principal{}, err
	}
	if !parsed.Valid {
		return Principal{}, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return Principal{}, errors.New("subject claim required")
	}
	return Principal{
		PersonID: claims.Subject,
		Role:     claims.Role,
		Expires:  claims.ExpiresAt.Time,
	}, nil
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// principalCache remembers verified tokens so repeat requests skip the
// signature check. Entries never outlive the token.
type principalCache struct {
	c *cache.Cache
}

const principalCacheTTL = 5 * time.Minute

func newPrincipalCache() principalCache {
	return principalCache{c: cache.New(principalCacheTTL, 10*time.Minute)}
}

func (pc principalCache) get(token string, now time.Time) (Principal, bool) {
	v, ok := pc.c.Get(token)
	if !ok {
		return Principal{}, false
	}
	p := v.(Principal)
	if !now.Before(p.Expires) {
		pc.c.Delete(token)
		return Principal{}, false
	}
	return p, true
}

func (pc principalCache) put(token string, p Principal, now time.Time) {
	ttl := principalCacheTTL
	if left := p.Expires.Sub(now); left < ttl {
		ttl = left
	}
	if ttl <= 0 {
		return
	}
	pc.c.Set(token, p, ttl)
}

func publicPaths(basePath string) map[string]bool {
	return map[string]bool{
		path.Join(basePath, "health"):            true,
		path.Join(basePath, "auth/login"):        true,
		path.Join(basePath, "auth/set-password"): true,
		path.Join(basePath, "openapi.json"):      true,
		path.Join(basePath, "docs"):              true,
	}
}

func newAuthMiddleware(basePath string, cfg AuthConfig, log *logrus.Logger) func(http.Handler) http.Handler {
	open := publicPaths(basePath)
	verified := newPrincipalCache()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if basePath != "" && !strings.HasPrefix(req.URL.Path, basePath) {
				next.ServeHTTP(w, req)
				return
			}
			if open[req.URL.Path] {
				next.ServeHTTP(w, req)
				return
			}

			authz := strings.TrimSpace(req.Header.Get("Authorization"))
			if authz == "" {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthenticated", "authentication required", nil))
				return
			}
			token, ok := bearerToken(authz)
			if !ok {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthenticated", "invalid credentials", nil))
				return
			}
			now := cfg.now()
			principal, hit := verified.get(token, now)
			if !hit {
				var err error
				principal, err = authenticateJWT(token, cfg)
				if err != nil {
					log.WithFields(logrus.Fields{"path": req.URL.Path, "remote": req.RemoteAddr}).WithError(err).Info("token rejected")
					respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthenticated", "invalid credentials", nil))
					return
				}
				verified.put(token, principal, now)
			}
			next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), principal)))
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	status := http.StatusInternalServerError
	if e, ok := err.(interface{ GetStatus() int }); ok {
		status = e.GetStatus()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err)
}

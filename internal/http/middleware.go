package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sujalbistaa/confessions/internal/common"
	"github.com/sujalbistaa/confessions/internal/identity"
)

const (
	identityKey  = "identity"
	jarKey       = "cookieJar"
	cookieMaxAge = 365 * 24 * 60 * 60
)

// CookiePolicy controls how identity cookies are scoped. A front end served
// from another site needs SameSite=None, which browsers only accept with Secure.
type CookiePolicy struct {
	SameSite http.SameSite
	Secure   bool
}

// NewCookiePolicy parses sameSite ("lax", "strict" or "none"). Unknown values
// mean lax, and "none" forces Secure.
func NewCookiePolicy(sameSite string, secure bool) CookiePolicy {
	switch strings.ToLower(strings.TrimSpace(sameSite)) {
	case "strict":
		return CookiePolicy{SameSite: http.SameSiteStrictMode, Secure: secure}
	case "none":
		return CookiePolicy{SameSite: http.SameSiteNoneMode, Secure: true}
	default:
		return CookiePolicy{SameSite: http.SameSiteLaxMode, Secure: secure}
	}
}

// cookieJar is the browser's durable key-value storage, seen from one request.
// Values set during the request are visible to later Gets in the same request.
type cookieJar struct {
	c      *gin.Context
	policy CookiePolicy
	set    map[string]string
}

func newCookieJar(c *gin.Context, policy CookiePolicy) *cookieJar {
	if policy.SameSite == 0 {
		policy.SameSite = http.SameSiteLaxMode
	}
	return &cookieJar{c: c, policy: policy, set: make(map[string]string)}
}

func (j *cookieJar) Get(_ context.Context, key string) (string, error) {
	if v, ok := j.set[key]; ok {
		return v, nil
	}
	v, err := j.c.Cookie(key)
	if err != nil || v == "" {
		return "", common.ErrNotFound
	}
	return v, nil
}

func (j *cookieJar) Set(_ context.Context, key, value string) error {
	j.c.SetSameSite(j.policy.SameSite)
	j.c.SetCookie(key, value, cookieMaxAge, "/", "", j.policy.Secure, true)
	j.set[key] = value
	return nil
}

// IdentityMiddleware resolves the caller's anonymous identity, issuing one on
// the first visit.
func IdentityMiddleware(log *zap.Logger, policy CookiePolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		jar := newCookieJar(c, policy)
		id := identity.NewProvider(jar, log).GetOrCreate(c.Request.Context())
		c.Set(jarKey, jar)
		c.Set(identityKey, id)
		c.Next()
	}
}

func identityFrom(c *gin.Context) string {
	return c.GetString(identityKey)
}

func jarFrom(c *gin.Context) *cookieJar {
	if jar, ok := c.Get(jarKey); ok {
		return jar.(*cookieJar)
	}
	return newCookieJar(c, CookiePolicy{})
}

// SecurityHeadersMiddleware adds basic, sensible security headers.
func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Prevents clickjacking
		c.Header("X-Frame-Options", "DENY")
		// Prevents MIME-type sniffing
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		c.Next()
	}
}

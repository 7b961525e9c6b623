package middleware

import (
	"crypto/subtle"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/valyala/fasthttp"
	"golang.org/x/crypto/bcrypt"

	"starlore/internal/config"
	httpctx "starlore/internal/http/ctx"
)

// SessionCookie names the dashboard login cookie.
const SessionCookie = "starlore_session"

// SessionTTL is how long a dashboard login stays valid.
const SessionTTL = 12 * time.Hour

// Sessions holds dashboard logins in memory. Restarting the server signs
// everyone out.
type Sessions struct {
	cache *lru.LRU[string, string]
}

func NewSessions(ttl time.Duration) *Sessions {
	return &Sessions{cache: lru.NewLRU[string, string](1024, nil, ttl)}
}

// Create starts a session for username and returns its token.
func (s *Sessions) Create(username string) string {
	token := uuid.NewString()
	s.cache.Add(token, username)
	return token
}

func (s *Sessions) Lookup(token string) (string, bool) {
	if token == "" {
		return "", false
	}
	return s.cache.Get(token)
}

func (s *Sessions) Revoke(token string) {
	s.cache.Remove(token)
}

// Credentials verifies the bootstrap admin login.
type Credentials struct {
	username string
	hash     []byte
}

// NewCredentials prepares the admin credentials from config. APP_ADMIN_PASSWORD
// may hold a bcrypt hash ("$2a$...") or a plain password, which is hashed here.
func NewCredentials(cfg *config.Config) (*Credentials, error) {
	if !cfg.DashboardProtected() {
		return &Credentials{username: cfg.AdminUser}, nil
	}
	if strings.HasPrefix(cfg.AdminPassword, "$2") {
		if _, err := bcrypt.Cost([]byte(cfg.AdminPassword)); err == nil {
			return &Credentials{username: cfg.AdminUser, hash: []byte(cfg.AdminPassword)}, nil
		}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return &Credentials{username: cfg.AdminUser, hash: hash}, nil
}

// Verify reports whether username/password match the admin credentials.
func (c *Credentials) Verify(username, password string) bool {
	if len(c.hash) == 0 {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(c.username)) == 1
	passOK := bcrypt.CompareHashAndPassword(c.hash, []byte(password)) == nil
	return userOK && passOK
}

// AdminAuth returns middleware that loads the session user and sets it on the
// context. When no admin password is configured the dashboard is open.
func AdminAuth(sessions *Sessions, cfg *config.Config) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		if !cfg.DashboardProtected() {
			return next
		}
		return func(ctx *fasthttp.RequestCtx) {
			token := string(ctx.Request.Header.Cookie(SessionCookie))
			username, ok := sessions.Lookup(token)
			if !ok {
				ctx.Redirect("/login", fasthttp.StatusSeeOther)
				return
			}

			httpctx.SetSessionToken(ctx, token)
			httpctx.SetUser(ctx, username)
			next(ctx)
		}
	}
}

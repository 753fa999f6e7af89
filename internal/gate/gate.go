package gate

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/gsis-platform/gsis-dashboard/internal/auth"
	"github.com/gsis-platform/gsis-dashboard/internal/domain"
)

// State is the gate's decision for one request.
type State string

const (
	StateLoading         State = "loading"
	StateUnauthenticated State = "unauthenticated"
	StateUnauthorized    State = "unauthorized"
	StateAuthorized      State = "authorized"
)

// sessionKey is where Protect stores the admitted session on the request.
const sessionKey = "gsis.session"

// Resolver resolves the session attached to an incoming request. The
// second result is false while the authorization context has not yet
// resolved a principal; a resolved request without a principal returns
// (nil, true).
type Resolver interface {
	Resolve(c *gin.Context) (*auth.Session, bool)
}

// TokenResolver resolves sessions from bearer tokens or the session
// cookie. Token resolution is synchronous, so it always reports resolved.
type TokenResolver struct {
	Tokens *auth.TokenService
}

// Cookie carrying the session token for browser clients.
const SessionCookie = "gsis_session"

func (t *TokenResolver) Resolve(c *gin.Context) (*auth.Session, bool) {
	token := ""
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		token = strings.TrimPrefix(h, "Bearer ")
	} else if cookie, err := c.Cookie(SessionCookie); err == nil {
		token = cookie
	}
	if token == "" {
		return nil, true
	}
	sess, err := t.Tokens.ParseSession(token)
	if err != nil {
		return nil, true
	}
	return sess, true
}

// Gate guards protected routes. It holds no state beyond the resolver and
// the redirect targets; the allowed-role set is given per route at mount.
type Gate struct {
	resolver        Resolver
	logger          *slog.Logger
	signInURL       string
	unauthorizedURL string
}

// New builds a gate redirecting to the given sign-in and unauthorized
// pages.
func New(resolver Resolver, logger *slog.Logger, signInURL, unauthorizedURL string) *Gate {
	return &Gate{
		resolver:        resolver,
		logger:          logger,
		signInURL:       signInURL,
		unauthorizedURL: unauthorizedURL,
	}
}

// Decide maps a session-resolution outcome and allowed-role set to a gate
// state. An empty allowed set admits any authenticated principal.
func Decide(sess *auth.Session, resolved bool, allowed map[domain.Role]bool) State {
	if !resolved {
		return StateLoading
	}
	if sess == nil {
		return StateUnauthenticated
	}
	if len(allowed) > 0 && !allowed[sess.Role] {
		return StateUnauthorized
	}
	return StateAuthorized
}

// Protect returns middleware admitting only the given roles; with no roles
// any authenticated principal qualifies. Loading renders a placeholder
// rather than redirecting.
func (g *Gate) Protect(allowedRoles ...domain.Role) gin.HandlerFunc {
	allowed := make(map[domain.Role]bool, len(allowedRoles))
	for _, r := range allowedRoles {
		allowed[r] = true
	}

	return func(c *gin.Context) {
		sess, resolved := g.resolver.Resolve(c)
		switch Decide(sess, resolved, allowed) {
		case StateLoading:
			c.AbortWithStatusJSON(http.StatusAccepted, gin.H{"status": "loading"})
		case StateUnauthenticated:
			c.Redirect(http.StatusSeeOther, g.signInURL)
			c.Abort()
		case StateUnauthorized:
			g.logger.Info("request rejected by role gate",
				"principal", sess.Principal, "role", sess.Role, "path", c.Request.URL.Path)
			c.Redirect(http.StatusSeeOther, g.unauthorizedURL)
			c.Abort()
		default:
			c.Set(sessionKey, sess)
			c.Next()
		}
	}
}

// SessionFrom returns the session Protect admitted for this request.
func SessionFrom(c *gin.Context) (*auth.Session, bool) {
	v, ok := c.Get(sessionKey)
	if !ok {
		return nil, false
	}
	sess, ok := v.(*auth.Session)
	return sess, ok
}

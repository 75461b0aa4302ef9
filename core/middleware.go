package core

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/sessions"
)

const sessionName = "soundrate_session"

const (
	ctxSessionID = "sessionID"
	ctxPrincipal = "principal"
)

// SessionMiddleware guarantees an opaque session id cookie and resolves the
// server-held principal for the request. Handlers read both through
// sessionIDFrom/principalFrom.
func SessionMiddleware(cfg Config, cookies *sessions.CookieStore, store SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := cookies.Get(c.Request, sessionName)
		if err != nil {
			respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "session error")
			c.Abort()
			return
		}

		applySessionOptions(cfg, session)
		sid, _ := session.Values["sid"].(string)
		if sid == "" {
			sid = uuid.NewString()
			session.Values["sid"] = sid
		}
		// Save to ensure id and options are persisted even for anonymous users.
		if err := session.Save(c.Request, c.Writer); err != nil {
			respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to persist session")
			c.Abort()
			return
		}

		principal, err := store.CurrentPrincipal(c.Request.Context(), sid)
		if err != nil {
			respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "session error")
			c.Abort()
			return
		}

		c.Set(ctxSessionID, sid)
		if principal != nil {
			c.Set(ctxPrincipal, principal)
		}
		c.Next()
	}
}

// sessionIDFrom returns the opaque session id bound by SessionMiddleware.
func sessionIDFrom(c *gin.Context) string {
	sid, _ := c.MustGet(ctxSessionID).(string)
	return sid
}

// principalFrom returns the authenticated principal, or nil for anonymous requests.
func principalFrom(c *gin.Context) *Principal {
	v, ok := c.Get(ctxPrincipal)
	if !ok {
		return nil
	}
	p, _ := v.(*Principal)
	return p
}

// rotateSessionID replaces the session id cookie with a fresh id and returns
// it. Used at login so an authenticated principal never rides a pre-auth id.
func rotateSessionID(c *gin.Context, cfg Config, cookies *sessions.CookieStore) (string, error) {
	session, err := cookies.Get(c.Request, sessionName)
	if err != nil {
		return "", err
	}
	sid := uuid.NewString()
	session.Values["sid"] = sid
	applySessionOptions(cfg, session)
	if err := session.Save(c.Request, c.Writer); err != nil {
		return "", err
	}
	c.Set(ctxSessionID, sid)
	return sid, nil
}

// expireSessionCookie clears the cookie values and marks it for deletion.
func expireSessionCookie(c *gin.Context, cfg Config, cookies *sessions.CookieStore) error {
	session, err := cookies.Get(c.Request, sessionName)
	if err != nil {
		return err
	}
	session.Values = map[interface{}]interface{}{}
	applySessionOptions(cfg, session)
	session.Options.MaxAge = -1 // Must be set AFTER applySessionOptions to properly delete cookie
	return session.Save(c.Request, c.Writer)
}

// OriginRefererMiddleware validates Origin/Referer against allowed list and sets CORS headers.
func OriginRefererMiddleware(cfg Config) gin.HandlerFunc {
	allowed := map[string]struct{}{}
	for _, o := range cfg.AllowedOrigins {
		allowed[strings.ToLower(o)] = struct{}{}
	}

	isAllowed := func(origin string) bool {
		if origin == "" {
			// Same-origin navigation (no Origin header) is allowed.
			return true
		}
		if len(allowed) == 0 {
			return false
		}
		origin = strings.ToLower(origin)
		_, ok := allowed[origin]
		return ok
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		referer := c.GetHeader("Referer")
		if origin == "" && referer != "" {
			if u, err := url.Parse(referer); err == nil {
				origin = u.Scheme + "://" + u.Host
			}
		}

		// Preflight handling
		if c.Request.Method == http.MethodOptions && origin != "" {
			if !isAllowed(origin) {
				respondError(c, http.StatusForbidden, "FORBIDDEN", "origin not allowed")
				c.Abort()
				return
			}
			setCORSHeaders(c, origin)
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}

		if !isAllowed(origin) {
			respondError(c, http.StatusForbidden, "FORBIDDEN", "origin not allowed")
			c.Abort()
			return
		}
		if origin != "" {
			setCORSHeaders(c, origin)
		}
		c.Next()
	}
}

func setCORSHeaders(c *gin.Context, origin string) {
	c.Header("Access-Control-Allow-Origin", origin)
	c.Header("Vary", "Origin")
	c.Header("Access-Control-Allow-Credentials", "true")
	c.Header("Access-Control-Allow-Headers", "Content-Type, X-CSRF-Token")
	c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
}

// CSRFMiddleware issues and validates a per-session CSRF token.
func CSRFMiddleware(cfg Config, cookies *sessions.CookieStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := cookies.Get(c.Request, sessionName)
		if err != nil {
			respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "session error")
			c.Abort()
			return
		}

		token, _ := session.Values["csrf_token"].(string)
		if token == "" {
			token, err = generateCSRFToken()
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to issue csrf token")
				c.Abort()
				return
			}
			session.Values["csrf_token"] = token
			applySessionOptions(cfg, session)
			if err := session.Save(c.Request, c.Writer); err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to persist session")
				c.Abort()
				return
			}
		}

		if !isSafeMethod(c.Request.Method) && !csrfExemptPath(c.Request.URL.Path) {
			header := c.GetHeader("X-CSRF-Token")
			if header == "" || header != token {
				respondError(c, http.StatusForbidden, "FORBIDDEN", "invalid csrf token")
				c.Abort()
				return
			}
		}

		// Expose token so frontend can read and reuse.
		c.Writer.Header().Set("X-CSRF-Token", token)
		c.Next()
	}
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}

// Paths that intentionally skip CSRF validation: the anonymous entry points.
func csrfExemptPath(path string) bool {
	switch path {
	case "/api/v1/auth/login",
		"/api/v1/recover-user-account",
		"/api/v1/reset-user-password":
		return true
	default:
		return false
	}
}

func generateCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func applySessionOptions(cfg Config, session *sessions.Session) {
	if session.Options == nil {
		session.Options = &sessions.Options{}
	}
	session.Options.Path = "/"
	session.Options.MaxAge = cfg.SessionTTLSeconds
	session.Options.HttpOnly = true
	session.Options.Secure = cfg.CookieSecure
	session.Options.SameSite = sameSiteFromString(cfg.CookieSameSite)
}

func sameSiteFromString(v string) http.SameSite {
	switch strings.ToLower(v) {
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteStrictMode
	}
}

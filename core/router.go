package core

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

var (
	errInvalidPage    = errors.New("page must be a positive integer")
	errInvalidPerPage = errors.New("per_page must be a positive integer")
)

// Dependencies bundles the collaborators the router wires into handlers.
// Tests substitute in-memory implementations for the interfaces.
type Dependencies struct {
	Cookies  *sessions.CookieStore
	Sessions SessionStore
	Users    UserRepository
	Library  LibraryRepository
	Auth     AuthService
	Creds    *CredentialManager
	Tokens   *RecoveryTokenService
	Policy   *Policy
	Mailer   Mailer
	Catalog  *MessageCatalog
	Metrics  *Metrics
}

// NewRouter constructs the Gin engine with routes wired.
func NewRouter(cfg Config, deps Dependencies) *gin.Engine {
	r := gin.Default()

	// Global middleware: origin/CORS -> session -> CSRF
	r.Use(OriginRefererMiddleware(cfg))
	r.Use(SessionMiddleware(cfg, deps.Cookies, deps.Sessions))
	r.Use(CSRFMiddleware(cfg, deps.Cookies))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", deps.Metrics.Handler())

	catalog := deps.Catalog
	api := r.Group("/api/v1")
	{
		api.POST("/auth/login", func(c *gin.Context) {
			var req struct {
				Username string `json:"username" binding:"required"`
				Password string `json:"password" binding:"required"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}

			principal, err := deps.Auth.Authenticate(c.Request.Context(), req.Username, req.Password)
			if err != nil {
				// Only a credential mismatch is a failed attempt; a repository
				// outage must not tell the caller their password is wrong.
				if IsKind(err, KindUnauthorized) {
					deps.Metrics.LoginAttempts.WithLabelValues("failure").Inc()
					respondError(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", catalog.Lookup("error.invalidCredentials"))
					return
				}
				respondServiceError(c, catalog, err)
				return
			}

			// Rotate the session id so the authenticated principal never
			// rides an id handed out pre-authentication.
			previousSID := sessionIDFrom(c)
			sid, err := rotateSessionID(c, cfg, deps.Cookies)
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "session error")
				return
			}
			if err := deps.Sessions.Clear(c.Request.Context(), previousSID); err != nil {
				// The pre-auth binding is anonymous; eviction is best-effort.
				log.Printf("failed to clear pre-auth session %s: %v", previousSID, err)
			}

			if err := deps.Sessions.Establish(c.Request.Context(), sid, *principal); err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to set session")
				return
			}

			deps.Metrics.LoginAttempts.WithLabelValues("success").Inc()
			c.JSON(http.StatusOK, gin.H{"user": gin.H{"username": principal.Username, "role": principal.Role}})
		})

		api.POST("/auth/logout", func(c *gin.Context) {
			if principalFrom(c) == nil {
				respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", catalog.Lookup("error.unauthorized"))
				return
			}
			if err := deps.Sessions.Clear(c.Request.Context(), sessionIDFrom(c)); err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to clear session")
				return
			}
			if err := expireSessionCookie(c, cfg, deps.Cookies); err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to clear session")
				return
			}
			c.Status(http.StatusNoContent)
		})

		api.GET("/users/me", func(c *gin.Context) {
			principal := principalFrom(c)
			if principal == nil {
				respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", catalog.Lookup("error.unauthorized"))
				return
			}
			u, err := deps.Users.FindByUsername(c.Request.Context(), principal.Username)
			if err != nil {
				respondServiceError(c, catalog, err)
				return
			}
			if u == nil {
				respondError(c, http.StatusNotFound, "NOT_FOUND", catalog.Lookup("error.userNotFound"))
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"username":   u.Username,
				"email":      u.Email,
				"role":       u.Role,
				"created_at": u.CreatedAt,
			})
		})

		// Public profile read: no email, no hash.
		api.GET("/get-user", func(c *gin.Context) {
			u, ok := lookupTargetUser(c, deps, catalog)
			if !ok {
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"username":   u.Username,
				"role":       u.Role,
				"created_at": u.CreatedAt,
			})
		})

		api.GET("/get-user-reviews", func(c *gin.Context) {
			u, ok := lookupTargetUser(c, deps, catalog)
			if !ok {
				return
			}
			index, limit, ok := pageWindow(c)
			if !ok {
				return
			}
			reviews, err := deps.Library.ReviewsByUser(c.Request.Context(), u.Username, index, limit)
			if err != nil {
				respondServiceError(c, catalog, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"reviews": reviews})
		})

		api.GET("/get-user-votes", listVotesHandler(deps, catalog, nil))
		api.GET("/get-user-upvotes", listVotesHandler(deps, catalog, intPtr(1)))
		api.GET("/get-user-downvotes", listVotesHandler(deps, catalog, intPtr(-1)))

		api.GET("/get-user-reports", func(c *gin.Context) {
			if err := deps.Policy.Authorize(principalFrom(c), ActionReadModeration, ""); err != nil {
				respondServiceError(c, catalog, err)
				return
			}
			u, ok := lookupTargetUser(c, deps, catalog)
			if !ok {
				return
			}
			index, limit, ok := pageWindow(c)
			if !ok {
				return
			}
			reports, err := deps.Library.ReportsByUser(c.Request.Context(), u.Username, index, limit)
			if err != nil {
				respondServiceError(c, catalog, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"reports": reports})
		})

		api.GET("/get-user-backlog", func(c *gin.Context) {
			if err := deps.Policy.Authorize(principalFrom(c), ActionReadModeration, ""); err != nil {
				respondServiceError(c, catalog, err)
				return
			}
			u, ok := lookupTargetUser(c, deps, catalog)
			if !ok {
				return
			}
			index, limit, ok := pageWindow(c)
			if !ok {
				return
			}
			backlog, err := deps.Library.BacklogByUser(c.Request.Context(), u.Username, index, limit)
			if err != nil {
				respondServiceError(c, catalog, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"backlog": backlog})
		})

		api.POST("/update-user-email", func(c *gin.Context) {
			var req struct {
				Username        string `json:"username" binding:"required"`
				CurrentPassword string `json:"cpassword" binding:"required"`
				NewEmail        string `json:"nemail" binding:"required,email"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", catalog.Lookup("error.invalidEmail"))
				return
			}

			principal := principalFrom(c)
			if err := deps.Policy.Authorize(principal, ActionUpdateOwnCredentials, req.Username); err != nil {
				respondServiceError(c, catalog, err)
				return
			}
			u, err := deps.Users.FindByUsername(c.Request.Context(), req.Username)
			if err != nil {
				respondServiceError(c, catalog, err)
				return
			}
			if u == nil {
				respondError(c, http.StatusNotFound, "NOT_FOUND", catalog.Lookup("error.userNotFound"))
				return
			}
			if err := deps.Policy.AuthorizeCredentialUpdate(principal, req.Username, req.CurrentPassword, u.PasswordHash); err != nil {
				respondServiceError(c, catalog, err)
				return
			}

			u.Email = req.NewEmail
			if err := deps.Users.Update(c.Request.Context(), *u); err != nil {
				respondServiceError(c, catalog, err)
				return
			}
			c.Status(http.StatusOK)
		})

		api.POST("/update-user-password", func(c *gin.Context) {
			var req struct {
				Username        string `json:"username" binding:"required"`
				CurrentPassword string `json:"cpassword" binding:"required"`
				NewPassword     string `json:"npassword" binding:"required"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}

			principal := principalFrom(c)
			if err := deps.Policy.Authorize(principal, ActionUpdateOwnCredentials, req.Username); err != nil {
				respondServiceError(c, catalog, err)
				return
			}
			u, err := deps.Users.FindByUsername(c.Request.Context(), req.Username)
			if err != nil {
				respondServiceError(c, catalog, err)
				return
			}
			if u == nil {
				respondError(c, http.StatusNotFound, "NOT_FOUND", catalog.Lookup("error.userNotFound"))
				return
			}
			if err := deps.Policy.AuthorizeCredentialUpdate(principal, req.Username, req.CurrentPassword, u.PasswordHash); err != nil {
				respondServiceError(c, catalog, err)
				return
			}
			if err := deps.Creds.ValidatePolicy(req.NewPassword); err != nil {
				respondServiceError(c, catalog, err)
				return
			}

			hash, err := deps.Creds.Hash(req.NewPassword)
			if err != nil {
				respondServiceError(c, catalog, err)
				return
			}
			u.PasswordHash = hash
			if err := deps.Users.Update(c.Request.Context(), *u); err != nil {
				respondServiceError(c, catalog, err)
				return
			}
			c.Status(http.StatusOK)
		})

		api.POST("/update-user-role", func(c *gin.Context) {
			var req struct {
				Username string `json:"username" binding:"required"`
				Role     string `json:"role" binding:"required"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}

			if err := deps.Policy.Authorize(principalFrom(c), ActionUpdateRole, req.Username); err != nil {
				respondServiceError(c, catalog, err)
				return
			}
			role, ok := ParseRole(req.Role)
			if !ok {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", catalog.Lookup("error.invalidRole"))
				return
			}
			u, err := deps.Users.FindByUsername(c.Request.Context(), req.Username)
			if err != nil {
				respondServiceError(c, catalog, err)
				return
			}
			if u == nil {
				respondError(c, http.StatusNotFound, "NOT_FOUND", catalog.Lookup("error.userNotFound"))
				return
			}

			u.Role = role
			if err := deps.Users.Update(c.Request.Context(), *u); err != nil {
				respondServiceError(c, catalog, err)
				return
			}
			c.Status(http.StatusOK)
		})

		api.POST("/recover-user-account", func(c *gin.Context) {
			var req struct {
				Email string `json:"email" binding:"required,email"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", catalog.Lookup("error.invalidEmail"))
				return
			}

			if err := deps.Policy.Authorize(principalFrom(c), ActionRecoverAccount, ""); err != nil {
				respondServiceError(c, catalog, err)
				return
			}
			u, err := deps.Users.FindByEmail(c.Request.Context(), req.Email)
			if err != nil {
				respondServiceError(c, catalog, err)
				return
			}
			if u == nil {
				// Reveals whether the email is linked; token validation
				// stays oracle-free regardless.
				respondError(c, http.StatusNotFound, "NOT_FOUND", catalog.Lookup("error.emailNotLinked"))
				return
			}

			token, err := deps.Tokens.Issue(u)
			if err != nil {
				respondServiceError(c, catalog, err)
				return
			}
			recoveryURL := strings.TrimSuffix(cfg.BaseURL, "/") + "/reset?token=" + token
			body := strings.Replace(catalog.Lookup("recover.body"), "%s", recoveryURL, 1)
			if err := deps.Mailer.Send(u.Email, catalog.Lookup("recover.subject"), body); err != nil {
				respondServiceError(c, catalog, err)
				return
			}
			deps.Metrics.RecoveryRequests.Inc()
			c.Status(http.StatusOK)
		})

		api.POST("/reset-user-password", func(c *gin.Context) {
			var req struct {
				Token    string `json:"token" binding:"required"`
				Password string `json:"password" binding:"required"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}

			if err := deps.Policy.Authorize(principalFrom(c), ActionRecoverAccount, ""); err != nil {
				respondServiceError(c, catalog, err)
				return
			}
			username, err := deps.Tokens.ValidateAndExtractUsername(c.Request.Context(), req.Token)
			if err != nil {
				respondServiceError(c, catalog, err)
				return
			}
			if err := deps.Creds.ValidatePolicy(req.Password); err != nil {
				respondServiceError(c, catalog, err)
				return
			}
			u, err := deps.Users.FindByUsername(c.Request.Context(), username)
			if err != nil {
				respondServiceError(c, catalog, err)
				return
			}
			if u == nil {
				respondError(c, http.StatusNotFound, "NOT_FOUND", catalog.Lookup("error.userNotFound"))
				return
			}

			hash, err := deps.Creds.Hash(req.Password)
			if err != nil {
				respondServiceError(c, catalog, err)
				return
			}
			// Storing the new hash is also what revokes every outstanding
			// recovery token for this account.
			u.PasswordHash = hash
			if err := deps.Users.Update(c.Request.Context(), *u); err != nil {
				respondServiceError(c, catalog, err)
				return
			}
			deps.Metrics.PasswordResets.Inc()
			c.Status(http.StatusOK)
		})

		admin := api.Group("/admin")
		{
			admin.POST("/users", func(c *gin.Context) {
				if err := deps.Policy.Authorize(principalFrom(c), ActionManageUsers, ""); err != nil {
					respondServiceError(c, catalog, err)
					return
				}
				var req struct {
					Username string `json:"username" binding:"required"`
					Email    string `json:"email" binding:"required,email"`
					Password string `json:"password" binding:"required"`
					Role     string `json:"role"`
				}
				if err := c.ShouldBindJSON(&req); err != nil {
					respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
					return
				}
				if req.Role == "" {
					req.Role = string(RoleUser)
				}
				role, ok := ParseRole(req.Role)
				if !ok {
					respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", catalog.Lookup("error.invalidRole"))
					return
				}
				if err := deps.Creds.ValidatePolicy(req.Password); err != nil {
					respondServiceError(c, catalog, err)
					return
				}
				hash, err := deps.Creds.Hash(req.Password)
				if err != nil {
					respondServiceError(c, catalog, err)
					return
				}
				user := UserRecord{
					Username:     strings.TrimSpace(req.Username),
					Email:        req.Email,
					PasswordHash: hash,
					Role:         role,
				}
				if err := deps.Users.Create(c.Request.Context(), user); err != nil {
					respondServiceError(c, catalog, err)
					return
				}
				c.JSON(http.StatusCreated, gin.H{
					"username": user.Username,
					"email":    user.Email,
					"role":     user.Role,
				})
			})

			admin.GET("/users", func(c *gin.Context) {
				if err := deps.Policy.Authorize(principalFrom(c), ActionManageUsers, ""); err != nil {
					respondServiceError(c, catalog, err)
					return
				}
				page, perPage, err := parsePagination(c.Query("page"), c.Query("per_page"))
				if err != nil {
					respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
					return
				}
				items, total, err := deps.Users.List(c.Request.Context(), page, perPage)
				if err != nil {
					respondServiceError(c, catalog, err)
					return
				}
				c.JSON(http.StatusOK, gin.H{
					"items":       items,
					"page":        page,
					"per_page":    perPage,
					"total_items": total,
					"total_pages": calcTotalPages(total, perPage),
				})
			})
		}
	}

	return r
}

// lookupTargetUser resolves the ?user= (or ?username=) query parameter to a
// stored user, emitting 400/404 itself when that fails.
func lookupTargetUser(c *gin.Context, deps Dependencies, catalog *MessageCatalog) (*UserRecord, bool) {
	username := strings.TrimSpace(firstNonEmpty(c.Query("user"), c.Query("username")))
	if username == "" {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "user is required")
		return nil, false
	}
	u, err := deps.Users.FindByUsername(c.Request.Context(), username)
	if err != nil {
		respondServiceError(c, catalog, err)
		return nil, false
	}
	if u == nil {
		respondError(c, http.StatusNotFound, "NOT_FOUND", catalog.Lookup("error.userNotFound"))
		return nil, false
	}
	return u, true
}

func listVotesHandler(deps Dependencies, catalog *MessageCatalog, value *int) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := lookupTargetUser(c, deps, catalog)
		if !ok {
			return
		}
		index, limit, ok := pageWindow(c)
		if !ok {
			return
		}
		votes, err := deps.Library.VotesByUser(c.Request.Context(), u.Username, value, index, limit)
		if err != nil {
			respondServiceError(c, catalog, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"votes": votes})
	}
}

// pageWindow parses the index/limit offset paging the list endpoints use.
func pageWindow(c *gin.Context) (int, int, bool) {
	index := 0
	limit := defaultPageLimit
	if v := strings.TrimSpace(c.Query("index")); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil || i < 0 {
			respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "index must be a non-negative integer")
			return 0, 0, false
		}
		index = i
	}
	if v := strings.TrimSpace(c.Query("limit")); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil || l <= 0 {
			respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be a positive integer")
			return 0, 0, false
		}
		if l > maxPageLimit {
			l = maxPageLimit
		}
		limit = l
	}
	return index, limit, true
}

func parsePagination(pageStr, perPageStr string) (int, int, error) {
	page := 1
	perPage := defaultPageLimit
	if strings.TrimSpace(pageStr) != "" {
		p, err := strconv.Atoi(pageStr)
		if err != nil || p <= 0 {
			return 0, 0, errInvalidPage
		}
		page = p
	}
	if strings.TrimSpace(perPageStr) != "" {
		p, err := strconv.Atoi(perPageStr)
		if err != nil || p <= 0 {
			return 0, 0, errInvalidPerPage
		}
		if p > maxPageLimit {
			p = maxPageLimit
		}
		perPage = p
	}
	return page, perPage, nil
}

func calcTotalPages(total, perPage int) int {
	if perPage <= 0 {
		return 0
	}
	return (total + perPage - 1) / perPage
}

func intPtr(v int) *int { return &v }

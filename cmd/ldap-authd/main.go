// Command ldap-authd is a small session-based authentication daemon in
// front of one or more LDAP directories. It exists both as a usable
// service and as the reference wiring of the library: registry, user
// provider, role resolution and authenticator.
//
// Configuration comes from the environment (an optional .env file is
// loaded first). AUTHD_CONNECTIONS names the directory connections;
// each connection reads its own LDAP_<NAME>_* variables, e.g.
// LDAP_CORP_HOST, LDAP_CORP_BASE_DN, LDAP_CORP_VENDOR.
package main

import (
	"encoding/gob"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/dirauth/ldapident/directory"
	"github.com/dirauth/ldapident/identity"
)

func init() {
	_ = godotenv.Load()
}

type serverConfig struct {
	Port          string   `default:"8080" envconfig:"PORT"`
	SessionName   string   `default:"authsession" envconfig:"SESSION_NAME"`
	SessionSecret string   `envconfig:"SESSION_SECRET"`
	SessionMaxAge int      `default:"3600" envconfig:"SESSION_MAX_AGE"`
	Connections   []string `default:"default" envconfig:"CONNECTIONS"`

	RefreshEveryRequests int           `envconfig:"REFRESH_EVERY_REQUESTS"`
	RefreshAfter         time.Duration `envconfig:"REFRESH_AFTER"`
	AlwaysRefresh        bool          `envconfig:"ALWAYS_REFRESH"`

	// AutomaticRoles derives a ROLE_ name per unmatched group.
	AutomaticRoles bool `default:"true" envconfig:"AUTOMATIC_ROLES"`
	// AdminRole guards the /api/admin subtree.
	AdminRole string `default:"ROLE_DOMAIN_ADMINS" envconfig:"ADMIN_ROLE"`
}

type server struct {
	cfg      serverConfig
	provider *identity.UserProvider
	auth     *identity.Authenticator
	log      *slog.Logger
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	srv, err := newServer(logger)
	if err != nil {
		log.Fatalf("failed to configure server: %v", err)
	}

	router := srv.router()
	if err := router.Run(":" + srv.cfg.Port); err != nil {
		log.Fatalf("failed to run server: %v", err)
	}
}

func newServer(logger *slog.Logger) (*server, error) {
	var cfg serverConfig
	if err := envconfig.Process("AUTHD", &cfg); err != nil {
		return nil, err
	}
	if cfg.SessionSecret == "" {
		return nil, errors.New("AUTHD_SESSION_SECRET must be set")
	}

	dirLog := directory.NewSlogLogger(logger)

	registry := identity.NewRegistry()
	for _, name := range cfg.Connections {
		name := strings.TrimSpace(name)
		prefix := "LDAP_" + strings.ToUpper(name)
		registry.Register(name, func() (identity.Connection, error) {
			connCfg, err := directory.FromEnv(prefix)
			if err != nil {
				return nil, err
			}
			return directory.NewConnection(connCfg, dirLog), nil
		})

		resolver, err := identity.NewDefaultRoleResolver(cfg.AutomaticRoles, roleRulesFromEnv(prefix))
		if err != nil {
			return nil, err
		}
		dispatcher, err := registry.Dispatcher(name)
		if err != nil {
			return nil, err
		}
		dispatcher.Subscribe(resolver)
	}

	provider := identity.NewUserProvider(registry, identity.ProviderConfig{
		RefreshEveryRequests: cfg.RefreshEveryRequests,
		RefreshAfter:         cfg.RefreshAfter,
		AlwaysRefresh:        cfg.AlwaysRefresh,
		Logger:               dirLog,
	})

	return &server{
		cfg:      cfg,
		provider: provider,
		auth:     identity.NewAuthenticator(registry, nil, dirLog),
		log:      logger,
	}, nil
}

// roleRulesFromEnv reads LDAP_<NAME>_ROLE_RULES, a semicolon-separated
// list of pattern=role,role entries. Example:
//
//	LDAP_CORP_ROLE_RULES="^domain admins$=ROLE_ADMIN;^vpn=ROLE_VPN"
func roleRulesFromEnv(prefix string) []identity.RoleRule {
	raw := os.Getenv(prefix + "_ROLE_RULES")
	if raw == "" {
		return nil
	}

	var rules []identity.RoleRule
	for _, item := range strings.Split(raw, ";") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		pattern, roles, ok := strings.Cut(item, "=")
		if !ok {
			continue
		}
		rules = append(rules, identity.RoleRule{
			GroupPattern: strings.TrimSpace(pattern),
			Roles:        strings.Split(roles, ","),
		})
	}
	return rules
}

func (s *server) router() *gin.Engine {
	gob.Register(&identity.LdapUser{})
	gob.Register(identity.StringRole(""))
	gob.Register(&identity.GroupMemberRole{})

	r := gin.Default()

	store := cookie.NewStore([]byte(s.cfg.SessionSecret))
	store.Options(sessions.Options{
		MaxAge:   s.cfg.SessionMaxAge,
		HttpOnly: true,
		Secure:   true,
	})
	r.Use(sessions.Sessions(s.cfg.SessionName, store))

	r.POST("/api/login", s.loginHandler)
	r.GET("/api/session", s.sessionHandler)

	user := r.Group("/api")
	user.Use(s.authRequired)
	user.GET("/profile", s.profileHandler)
	user.POST("/logout", s.logoutHandler)

	admin := user.Group("/admin")
	admin.Use(s.roleRequired(s.cfg.AdminRole))
	admin.GET("/whoami", s.profileHandler)

	return r
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *server) loginHandler(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request format"})
		return
	}

	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	user, err := s.provider.LoadByUsername(c.Request.Context(), username)
	if err != nil {
		var notFound *identity.UserNotFoundError
		if errors.As(err, &notFound) {
			// Same response as a wrong password, no username probing.
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		s.log.Error("user lookup failed", "username", username, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "directory unavailable"})
		return
	}

	token := identity.Token{Credentials: req.Password}
	if err := s.auth.CheckAuthentication(c.Request.Context(), user, token); err != nil {
		var bad *identity.BadCredentialsError
		if errors.As(err, &bad) {
			s.log.Info("login rejected", "username", username, "reason", bad.Diagnostic())
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		s.log.Error("authentication failed", "username", username, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "directory unavailable"})
		return
	}

	session := sessions.Default(c)
	// Cookie sessions top out around 4KB; a photo blob does not fit.
	user.SetPicture(nil)
	session.Set("user", user)
	if err := session.Save(); err != nil {
		s.log.Error("session save failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session failure"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"username": user.GetUsername(),
		"roles":    roleNames(user),
	})
}

func (s *server) logoutHandler(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	_ = session.Save()
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

func (s *server) sessionHandler(c *gin.Context) {
	user := sessionUser(c)
	if user == nil {
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"username":      user.GetUsername(),
	})
}

func (s *server) profileHandler(c *gin.Context) {
	user := currentUser(c)
	c.JSON(http.StatusOK, gin.H{
		"username":    user.GetUsername(),
		"dn":          user.GetDN(),
		"displayName": user.GetDisplayName(),
		"email":       user.GetEmail(),
		"roles":       roleNames(user),
	})
}

// authRequired loads the session user and runs it through the
// provider's refresh throttle, so long-lived sessions pick up directory
// changes.
func (s *server) authRequired(c *gin.Context) {
	user := sessionUser(c)
	if user == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	refreshed, err := s.provider.Refresh(c.Request.Context(), user)
	if err != nil {
		var notFound *identity.UserNotFoundError
		if errors.As(err, &notFound) {
			// The account disappeared from the directory; drop the session.
			session := sessions.Default(c)
			session.Clear()
			_ = session.Save()
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		s.log.Error("refresh failed", "username", user.GetUsername(), "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "directory unavailable"})
		return
	}

	// The refresh throttle counter lives inside the serialized record,
	// so the session must be rewritten even when the cached record came
	// back unchanged.
	refreshed.SetPicture(nil)
	session := sessions.Default(c)
	session.Set("user", refreshed)
	if err := session.Save(); err != nil {
		s.log.Error("session save failed", "err", err)
	}

	c.Set("user", refreshed)
	c.Next()
}

func (s *server) roleRequired(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		for _, r := range user.GetRoles() {
			if r.RoleName() == role {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	}
}

func sessionUser(c *gin.Context) identity.DirectoryUser {
	session := sessions.Default(c)
	user, _ := session.Get("user").(*identity.LdapUser)
	if user == nil {
		return nil
	}
	return user
}

// currentUser returns the record stored by authRequired. Only valid on
// routes behind that middleware.
func currentUser(c *gin.Context) identity.DirectoryUser {
	user, _ := c.MustGet("user").(identity.DirectoryUser)
	return user
}

func roleNames(user identity.DirectoryUser) []string {
	names := make([]string, 0, len(user.GetRoles()))
	for _, role := range user.GetRoles() {
		names = append(names, role.RoleName())
	}
	return names
}

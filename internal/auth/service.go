package auth

import (
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/KevinKickass/OpenBeamCore/internal/config"
	"go.uber.org/zap"
)

type Permission string

const (
	PermRead    Permission = "read"    // readbacks, status, snapshots
	PermOperate Permission = "operate" // setpoints, restore
	PermPhysics Permission = "physics" // energy, design model
)

// Roles accepted in the configuration.
const (
	RoleViewer    = "viewer"
	RoleOperator  = "operator"
	RolePhysicist = "physicist"
)

// Identity is the authenticated caller of a request.
type Identity struct {
	Name        string
	Role        string
	Permissions []Permission
}

func (i Identity) Has(p Permission) bool {
	for _, have := range i.Permissions {
		if have == p {
			return true
		}
	}
	return false
}

// AuthService authenticates users and API tokens listed in the
// configuration.
type AuthService struct {
	enabled bool
	jwt     *JWTHandler
	users   map[string]config.User
	tokens  map[string]config.APIToken // keyed by token hash
	logger  *zap.Logger
}

func NewAuthService(cfg config.AuthConfig, logger *zap.Logger) (*AuthService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := cfg.AccessTokenTTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	a := &AuthService{
		enabled: cfg.Enabled,
		jwt:     NewJWTHandler(cfg.GetJWTSecret(), ttl),
		users:   make(map[string]config.User, len(cfg.Users)),
		tokens:  make(map[string]config.APIToken, len(cfg.APITokens)),
		logger:  logger,
	}

	for _, u := range cfg.Users {
		if _, ok := rolePermissions[u.Role]; !ok {
			return nil, fmt.Errorf("user %s: unknown role %q", u.Username, u.Role)
		}
		if _, dup := a.users[u.Username]; dup {
			return nil, fmt.Errorf("duplicate user %s", u.Username)
		}
		a.users[u.Username] = u
	}
	for _, t := range cfg.APITokens {
		if _, ok := rolePermissions[t.Role]; !ok {
			return nil, fmt.Errorf("api token %s: unknown role %q", t.Name, t.Role)
		}
		a.tokens[t.TokenHash] = t
	}

	if cfg.Enabled && !cfg.IsProductionReady() {
		logger.Warn("JWT secret is not production ready, set it via environment",
			zap.String("env", cfg.JWTSecretEnv))
	}
	return a, nil
}

func (a *AuthService) Enabled() bool { return a.enabled }

// Login verifies the password of a configured user and issues an access
// token.
func (a *AuthService) Login(username, password string) (string, time.Time, error) {
	user, ok := a.users[username]
	if !ok {
		// Hash anyway so unknown users take as long as wrong passwords.
		_, _ = VerifyPassword(password, dummyHash)
		a.logger.Info("login failed", zap.String("username", username), zap.String("reason", "unknown user"))
		return "", time.Time{}, fmt.Errorf("invalid credentials")
	}

	valid, err := VerifyPassword(password, user.PasswordHash)
	if err != nil || !valid {
		a.logger.Info("login failed", zap.String("username", username), zap.String("reason", "invalid password"))
		return "", time.Time{}, fmt.Errorf("invalid credentials")
	}

	token, expires, err := a.jwt.GenerateAccessToken(user.Username, user.Role)
	if err != nil {
		return "", time.Time{}, err
	}
	a.logger.Info("login", zap.String("username", username), zap.String("role", user.Role))
	return token, expires, nil
}

// ValidateToken accepts a JWT issued by Login or a configured API token.
func (a *AuthService) ValidateToken(token string) (Identity, error) {
	if claims, err := a.jwt.ValidateAccessToken(token); err == nil {
		return Identity{Name: claims.Subject, Role: claims.Role, Permissions: roleToPermissions(claims.Role)}, nil
	}

	if !ValidateTokenFormat(token) {
		return Identity{}, fmt.Errorf("invalid token")
	}
	hash := HashToken(token)
	for stored, t := range a.tokens {
		if subtle.ConstantTimeCompare([]byte(stored), []byte(hash)) == 1 {
			return Identity{Name: t.Name, Role: t.Role, Permissions: roleToPermissions(t.Role)}, nil
		}
	}
	return Identity{}, fmt.Errorf("invalid token")
}

var rolePermissions = map[string][]Permission{
	RoleViewer:    {PermRead},
	RoleOperator:  {PermRead, PermOperate},
	RolePhysicist: {PermRead, PermOperate, PermPhysics},
}

func roleToPermissions(role string) []Permission {
	return rolePermissions[role]
}

// Argon2id hash of a random password, used to equalise login timing.
const dummyHash = "$argon2id$v=19$m=65536,t=1,p=1$b2JjLWR1bW15LXNhbHQ$0yVx1a3m4YV5bFh0w8hZ1l0l7m4mOQ2f3xv8t0Qe5bE"

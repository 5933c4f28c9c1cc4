package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/onepointltd/kbserver/internal/config"
	"github.com/onepointltd/kbserver/internal/logger"
	"github.com/onepointltd/kbserver/internal/repos"
	"github.com/onepointltd/kbserver/internal/tenant"
	"github.com/onepointltd/kbserver/internal/types"
)

const (
	PermissionRead  = "read"
	PermissionWrite = "write"

	adminTokenFile = "admin.token"
)

var (
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// TokenClaims are the JWT claims carried by every tenant token. Subject is
// the slugified tenant folder name.
type TokenClaims struct {
	Name        string   `json:"name,omitempty"`
	Email       string   `json:"email,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}

func (c *TokenClaims) HasPermission(p string) bool {
	// A token without a permissions claim is a full-access tenant token.
	if len(c.Permissions) == 0 {
		return true
	}
	for _, perm := range c.Permissions {
		if perm == p {
			return true
		}
	}
	return false
}

func (c *TokenClaims) ReadOnly() bool {
	return len(c.Permissions) > 0 && !c.HasPermission(PermissionWrite)
}

type AuthService interface {
	MintToken(name, email string, permissions []string, materializeTenant bool) (string, string, error)
	DecodeToken(tokenString string) (*TokenClaims, error)
	Bootstrap(ctx context.Context) (string, error)
	AdminLogin(ctx context.Context, name, email, password string) (string, error)
	CreateAdminUser(ctx context.Context, name, email, password string) (*types.AdminUser, error)
	ListAdminUsers(ctx context.Context) ([]types.AdminUser, error)
	DeleteAdminUser(ctx context.Context, email string) error
}

type authService struct {
	log        *logger.Logger
	cfg        config.JWT
	configDir  string
	adminFile  *config.AdminFile
	adminRepo  *repos.AdminUserRepo
	tenants    *tenant.Service
	signingKey []byte
	method     jwt.SigningMethod
}

func NewAuthService(
	cfg config.JWT,
	configDir string,
	adminFile *config.AdminFile,
	adminRepo *repos.AdminUserRepo,
	tenants *tenant.Service,
	baseLog *logger.Logger,
) (AuthService, error) {
	method := signingMethod(cfg.Algorithm)
	if method == nil {
		return nil, fmt.Errorf("unsupported JWT algorithm %q", cfg.Algorithm)
	}
	return &authService{
		log:        baseLog.With("service", "AuthService"),
		cfg:        cfg,
		configDir:  configDir,
		adminFile:  adminFile,
		adminRepo:  adminRepo,
		tenants:    tenants,
		signingKey: []byte(cfg.Secret),
		method:     method,
	}, nil
}

func signingMethod(alg string) jwt.SigningMethod {
	switch strings.ToUpper(strings.TrimSpace(alg)) {
	case "", "HS256":
		return jwt.SigningMethodHS256
	case "HS384":
		return jwt.SigningMethodHS384
	case "HS512":
		return jwt.SigningMethodHS512
	default:
		return nil
	}
}

// Slugify lowercases the name and maps every non-alphanumeric rune to an
// underscore. Leading and trailing whitespace is dropped first.
func Slugify(name string) string {
	name = strings.TrimSpace(strings.ToLower(name))
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// MintToken issues a tenant token with subject = slugify(name). When
// materializeTenant is set the tenant folder is created alongside.
func (s *authService) MintToken(name, email string, permissions []string, materializeTenant bool) (string, string, error) {
	subject := Slugify(name)
	if subject == "" {
		return "", "", fmt.Errorf("cannot mint token for empty name")
	}
	claims := TokenClaims{
		Name:        name,
		Email:       email,
		Permissions: permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  subject,
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	if ttl := s.cfg.TokenTTL(); ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(ttl))
	}
	token, err := jwt.NewWithClaims(s.method, claims).SignedString(s.signingKey)
	if err != nil {
		return "", "", fmt.Errorf("sign token: %w", err)
	}
	if materializeTenant {
		if _, err := s.tenants.CreateTenantFolder(subject, token); err != nil {
			return "", "", err
		}
	}
	return token, subject, nil
}

func (s *authService) DecodeToken(tokenString string) (*TokenClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != s.method.Alg() {
			return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
		}
		return s.signingKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*TokenClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Bootstrap ensures an admin token exists. A previously stored token file
// wins; otherwise a fresh token is minted from the configured admin identity
// and both the token file and the administrators YAML list are written.
func (s *authService) Bootstrap(ctx context.Context) (string, error) {
	tokenPath := filepath.Join(s.configDir, adminTokenFile)
	if raw, err := os.ReadFile(tokenPath); err == nil {
		token := strings.TrimSpace(string(raw))
		if token != "" {
			s.adminFile.SetAdminJWT(token)
			s.adminFile.AddAdministrator(s.cfg.AdminTokenEmail)
			return token, nil
		}
	}
	token, _, err := s.MintToken(s.cfg.AdminTokenName, s.cfg.AdminTokenEmail, nil, false)
	if err != nil {
		return "", fmt.Errorf("mint admin token: %w", err)
	}
	if err := os.MkdirAll(s.configDir, 0o755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(tokenPath, []byte(token), 0o600); err != nil {
		return "", fmt.Errorf("write admin token file: %w", err)
	}
	s.adminFile.SetAdminJWT(token)
	s.adminFile.AddAdministrator(s.cfg.AdminTokenEmail)
	if err := s.adminFile.Save(); err != nil {
		return "", fmt.Errorf("write administrators file: %w", err)
	}

	if s.cfg.AdminPassword != "" {
		if _, err := s.CreateAdminUser(ctx, s.cfg.AdminTokenName, s.cfg.AdminTokenEmail, s.cfg.AdminPassword); err != nil && !errors.Is(err, repos.ErrAdminExists) {
			s.log.Warn("Admin user bootstrap failed", "error", err)
		}
	}
	return token, nil
}

// AdminLogin checks name and bcrypt-verified password against the stored
// admin users and mints an admin token on success.
func (s *authService) AdminLogin(ctx context.Context, name, email, password string) (string, error) {
	user, err := s.adminRepo.FindByName(ctx, name)
	if err != nil {
		return "", fmt.Errorf("lookup admin user: %w", err)
	}
	if user == nil {
		return "", ErrInvalidCredentials
	}
	if email != "" && !strings.EqualFold(user.Email, email) {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	token, _, err := s.MintToken(user.Name, user.Email, nil, false)
	if err != nil {
		return "", err
	}
	s.adminFile.AddAdministrator(user.Email)
	return token, nil
}

func (s *authService) CreateAdminUser(ctx context.Context, name, email, password string) (*types.AdminUser, error) {
	if name == "" || email == "" || password == "" {
		return nil, fmt.Errorf("name, email and password are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &types.AdminUser{Name: name, Email: strings.ToLower(email), PasswordHash: string(hash)}
	id, err := s.adminRepo.Create(ctx, user)
	if err != nil {
		return nil, err
	}
	user.ID = id
	return user, nil
}

func (s *authService) ListAdminUsers(ctx context.Context) ([]types.AdminUser, error) {
	return s.adminRepo.List(ctx)
}

func (s *authService) DeleteAdminUser(ctx context.Context, email string) error {
	return s.adminRepo.DeleteByEmail(ctx, email)
}

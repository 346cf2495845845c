// Package app is the application core wiring the store, object storage,
// entitlement checker and outbound integrations together.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"littlefidan/internal/domain"
	"littlefidan/internal/entitlement"
	"littlefidan/internal/mailer"
	"littlefidan/internal/storage"
	"littlefidan/internal/store"
	"littlefidan/internal/util"
	"littlefidan/pkg/auth"
	"littlefidan/pkg/imagegen"
)

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL string
	JWTSecret   string
	SessionTTL  time.Duration
	LibraryURL  string

	// Injectable dependencies; nil values fall back to production wiring
	// built from the fields above.
	Store    store.Store
	Sessions store.SessionStore
	Objects  storage.ObjectStore
	Mailer   *mailer.Mailer
	Images   *imagegen.Client
	Now      func() time.Time
}

// App is the application service behind the HTTP layer.
type App struct {
	store       store.Store
	sessions    store.SessionStore
	objects     storage.ObjectStore
	mailer      *mailer.Mailer
	images      *imagegen.Client
	entitlement *entitlement.Checker
	libraryURL  string
	now         func() time.Time
}

// New constructs the application. Store, Sessions and Objects must be
// provided either directly or via DatabaseURL/JWTSecret.
func New(cfg Config) (*App, error) {
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		gormStore, err := store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
		dataStore = gormStore
	}

	sessionStore := cfg.Sessions
	if sessionStore == nil {
		jwtStore, err := store.NewJWTSessionStore(cfg.JWTSecret, cfg.SessionTTL)
		if err != nil {
			return nil, fmt.Errorf("init session store: %w", err)
		}
		sessionStore = jwtStore
	}

	if cfg.Objects == nil {
		return nil, fmt.Errorf("object store required")
	}

	return &App{
		store:       dataStore,
		sessions:    sessionStore,
		objects:     cfg.Objects,
		mailer:      cfg.Mailer,
		images:      cfg.Images,
		entitlement: entitlement.NewCheckerWithClock(dataStore, now),
		libraryURL:  strings.TrimRight(cfg.LibraryURL, "/"),
		now:         now,
	}, nil
}

// SignUp registers a new user. The first account becomes the admin.
func (a *App) SignUp(ctx context.Context, email, password string) (domain.User, string, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if len(password) < 8 {
		return domain.User{}, "", fmt.Errorf("%w: password must be at least 8 characters", ErrValidation)
	}
	exists, err := a.store.HasUserEmail(ctx, email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("check email: %w", err)
	}
	if exists {
		return domain.User{}, "", ErrEmailTaken
	}
	role := domain.RoleUser
	count, err := a.store.UserCount(ctx)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("count users: %w", err)
	}
	if count == 0 {
		role = domain.RoleAdmin
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("hash password: %w", err)
	}
	nowTime := a.now().UTC()
	user := domain.User{
		ID:           util.NewID(),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Status:       domain.StatusActive,
		CreatedAt:    nowTime,
		UpdatedAt:    nowTime,
	}
	if err := a.store.SaveUser(ctx, user); err != nil {
		return domain.User{}, "", fmt.Errorf("save user: %w", err)
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue session: %w", err)
	}
	return user, token, nil
}

// Login validates credentials and issues a session token.
func (a *App) Login(ctx context.Context, email, password string) (domain.User, string, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return domain.User{}, "", ErrInvalidCredentials
	}
	user, ok, err := a.store.GetUserByEmail(ctx, email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("get user: %w", err)
	}
	if !ok || !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	if user.Status == domain.StatusDisabled {
		return domain.User{}, "", ErrAccountDisabled
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue session: %w", err)
	}
	return user, token, nil
}

// Logout invalidates the session token where the session store supports it.
func (a *App) Logout(token string) error {
	return a.sessions.DeleteSession(token)
}

// UserByToken resolves a session token to its user.
func (a *App) UserByToken(ctx context.Context, token string) (domain.User, bool, error) {
	userID, ok, err := a.sessions.GetUserIDByToken(token)
	if err != nil || !ok {
		return domain.User{}, false, nil
	}
	user, ok, err := a.store.GetUserByID(ctx, userID)
	if err != nil {
		return domain.User{}, false, fmt.Errorf("get user: %w", err)
	}
	if !ok || user.Status == domain.StatusDisabled {
		return domain.User{}, false, nil
	}
	return user, true, nil
}

// Entitlement exposes the checker for the status endpoint.
func (a *App) Entitlement() *entitlement.Checker {
	return a.entitlement
}

// IsUnavailable reports whether err stems from backend connectivity, which
// callers surface as retryable instead of as a user-facing denial.
func IsUnavailable(err error) bool {
	return errors.Is(err, store.ErrUnavailable)
}

func normalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return "", errors.New("email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", errors.New("email format is invalid")
	}
	return email, nil
}

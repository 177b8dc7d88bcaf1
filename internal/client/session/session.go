// Package session keeps the signed-in identity between CLI invocations and
// exposes it to the dashboards as an auth capability.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"immun/internal/client/vault"
	"immun/internal/shared/models"
)

const sessionFile = "session"

var (
	ErrNoSession = errors.New("not logged in, run `immun login`")
	ErrExpired   = errors.New("session expired, run `immun login`")
)

var sessionAAD = []byte("immun:session:v1")

// Session is what a successful login leaves behind.
type Session struct {
	AccessToken string      `json:"access_token"`
	User        models.User `json:"user"`
	CreatedAt   time.Time   `json:"created_at"`
}

// ExpiresAt reads the exp claim of the access token. The token is not
// verified here; the Records API remains the authority.
func (s Session) ExpiresAt() (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s.AccessToken, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

func (s Session) Expired(now time.Time) bool {
	exp, ok := s.ExpiresAt()
	return ok && !now.Before(exp)
}

// Store persists one session sealed under the local vault key.
type Store struct {
	dir   string
	vault *vault.Vault
}

func NewStore(dir string) *Store {
	return &Store{dir: dir, vault: vault.New(dir)}
}

func (s *Store) Vault() *vault.Vault { return s.vault }

func (s *Store) path() string { return filepath.Join(s.dir, sessionFile) }

func (s *Store) Save(sess Session) error {
	key, err := s.vault.LoadOrCreate()
	if err != nil {
		return fmt.Errorf("vault key: %w", err)
	}
	plain, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	sealed, err := vault.Seal(key, plain, sessionAAD)
	if err != nil {
		return fmt.Errorf("seal session: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return err
	}
	return os.WriteFile(s.path(), sealed, 0o600)
}

func (s *Store) Load() (Session, error) {
	sealed, err := os.ReadFile(s.path())
	if errors.Is(err, os.ErrNotExist) {
		return Session{}, ErrNoSession
	}
	if err != nil {
		return Session{}, err
	}
	key, err := s.vault.Load()
	if err != nil {
		return Session{}, fmt.Errorf("vault key: %w", err)
	}
	plain, err := vault.Open(key, sealed, sessionAAD)
	if err != nil {
		return Session{}, fmt.Errorf("open session: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(plain, &sess); err != nil {
		return Session{}, fmt.Errorf("decode session: %w", err)
	}
	return sess, nil
}

// Active loads the session and rejects it once the token has expired.
func (s *Store) Active(now time.Time) (Session, error) {
	sess, err := s.Load()
	if err != nil {
		return Session{}, err
	}
	if sess.Expired(now) {
		return Session{}, ErrExpired
	}
	return sess, nil
}

func (s *Store) Clear() error {
	err := os.Remove(s.path())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Context is the auth capability injected into a dashboard: the current
// identity plus a logout action.
type Context struct {
	mu       sync.RWMutex
	sess     Session
	loggedIn bool
	store    *Store
	logger   *slog.Logger
}

func NewContext(sess Session, store *Store, logger *slog.Logger) *Context {
	if logger == nil {
		logger = slog.Default()
	}
	return &Context{sess: sess, loggedIn: true, store: store, logger: logger}
}

func (c *Context) Username() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.loggedIn {
		return ""
	}
	return c.sess.User.Username
}

// User returns the signed-in account, or the zero User after Logout.
func (c *Context) User() models.User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.loggedIn {
		return models.User{}
	}
	return c.sess.User
}

// ExpiresAt reports when the session's token stops being accepted.
func (c *Context) ExpiresAt() (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sess.ExpiresAt()
}

func (c *Context) IsAdmin() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loggedIn && c.sess.User.Admin()
}

// Token returns the bearer token, or "" after Logout.
func (c *Context) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.loggedIn {
		return ""
	}
	return c.sess.AccessToken
}

func (c *Context) LoggedIn() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loggedIn
}

// Logout forgets the identity and removes the stored session.
func (c *Context) Logout() {
	c.mu.Lock()
	c.loggedIn = false
	c.sess.AccessToken = ""
	c.mu.Unlock()
	if c.store == nil {
		return
	}
	if err := c.store.Clear(); err != nil {
		c.logger.Warn("remove stored session", "error", err)
	}
}

// Package auth provides the session capability checked before every write,
// and a users-file backed Manager that implements it.
//
// Users are persisted as JSON (username and bcrypt hash) in a single file on
// an afero filesystem. A Manager is authenticated after a successful Login.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/spf13/afero"
	"golang.org/x/crypto/bcrypt"
)

// Session answers whether the current session may write.
type Session interface {
	IsAuthenticated() bool
}

// StaticSession is a fixed Session, for embedding and tests.
type StaticSession bool

// IsAuthenticated returns bool(s).
func (s StaticSession) IsAuthenticated() bool { return bool(s) }

var (
	ErrUserExists      = errors.New("username already exists")
	ErrUserNotFound    = errors.New("user not found")
	ErrInvalidPassword = errors.New("invalid password")
)

// DefaultUsersFile is the users file name used when none is configured.
const DefaultUsersFile = "users.json"

type user struct {
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
}

// Manager stores users in a JSON file and tracks the logged-in user.
//
// Thread-safety: all methods are safe for concurrent use.
type Manager struct {
	fs   afero.Fs
	path string
	cost int

	mu      sync.Mutex
	users   map[string]user
	current string
}

// NewManager loads users from path on fs. A missing file is an empty user set.
func NewManager(fs afero.Fs, path string) (*Manager, error) {
	m := &Manager{
		fs:    fs,
		path:  path,
		cost:  bcrypt.DefaultCost,
		users: make(map[string]user),
	}

	data, err := afero.ReadFile(fs, path)
	if errors.Is(err, os.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read users file: %w", err)
	}

	var list []user
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parse users file %s: %w", path, err)
	}
	for _, u := range list {
		m.users[u.Username] = u
	}
	return m, nil
}

// WithCost sets the bcrypt cost for future signups. Tests use bcrypt.MinCost.
func (m *Manager) WithCost(cost int) *Manager {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cost = cost
	return m
}

// Signup creates a user and persists the users file.
func (m *Manager) Signup(username, password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[username]; ok {
		return fmt.Errorf("signup %q: %w", username, ErrUserExists)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), m.cost)
	if err != nil {
		return fmt.Errorf("signup %q: %w", username, err)
	}
	m.users[username] = user{Username: username, PasswordHash: string(hash)}

	if err := m.saveLocked(); err != nil {
		delete(m.users, username)
		return fmt.Errorf("signup %q: %w", username, err)
	}
	return nil
}

// Login authenticates username. On failure the previous session is kept.
func (m *Manager) Login(username, password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[username]
	if !ok {
		return fmt.Errorf("login %q: %w", username, ErrUserNotFound)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return fmt.Errorf("login %q: %w", username, ErrInvalidPassword)
	}
	m.current = username
	return nil
}

// Logout ends the current session.
func (m *Manager) Logout() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = ""
}

// IsAuthenticated reports whether a user is logged in.
func (m *Manager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != ""
}

// CurrentUser returns the logged-in username, or "".
func (m *Manager) CurrentUser() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Users returns the known usernames in sorted order.
func (m *Manager) Users() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.users))
	for name := range m.users {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Manager) saveLocked() error {
	list := make([]user, 0, len(m.users))
	for _, u := range m.users {
		list = append(list, u)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Username < list[j].Username })

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(m.path); dir != "." {
		if err := m.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create users dir: %w", err)
		}
	}
	return afero.WriteFile(m.fs, m.path, data, 0o600)
}

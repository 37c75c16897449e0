package auth

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestManager(t *testing.T, fs afero.Fs) *Manager {
	t.Helper()
	m, err := NewManager(fs, "/db/users.json")
	require.NoError(t, err)
	return m.WithCost(bcrypt.MinCost)
}

func TestStaticSession(t *testing.T) {
	assert.True(t, StaticSession(true).IsAuthenticated())
	assert.False(t, StaticSession(false).IsAuthenticated())
}

func TestManager_SignupLogin(t *testing.T) {
	m := newTestManager(t, afero.NewMemMapFs())
	assert.False(t, m.IsAuthenticated())

	require.NoError(t, m.Signup("admin", "123456"))
	require.NoError(t, m.Login("admin", "123456"))

	assert.True(t, m.IsAuthenticated())
	assert.Equal(t, "admin", m.CurrentUser())

	m.Logout()
	assert.False(t, m.IsAuthenticated())
	assert.Equal(t, "", m.CurrentUser())
}

func TestManager_Errors(t *testing.T) {
	m := newTestManager(t, afero.NewMemMapFs())
	require.NoError(t, m.Signup("admin", "123456"))

	assert.ErrorIs(t, m.Signup("admin", "other"), ErrUserExists)
	assert.ErrorIs(t, m.Login("nobody", "x"), ErrUserNotFound)
	assert.ErrorIs(t, m.Login("admin", "wrong"), ErrInvalidPassword)
	assert.False(t, m.IsAuthenticated())
}

func TestManager_PersistsUsers(t *testing.T) {
	fs := afero.NewMemMapFs()
	m := newTestManager(t, fs)
	require.NoError(t, m.Signup("bob", "pw"))
	require.NoError(t, m.Signup("alice", "pw"))

	exists, err := afero.Exists(fs, "/db/users.json")
	require.NoError(t, err)
	assert.True(t, exists)

	reloaded := newTestManager(t, fs)
	assert.Equal(t, []string{"alice", "bob"}, reloaded.Users())
	require.NoError(t, reloaded.Login("alice", "pw"))
}

func TestManager_CorruptUsersFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/db/users.json", []byte("{not json"), 0o600))

	_, err := NewManager(fs, "/db/users.json")
	assert.Error(t, err)
}

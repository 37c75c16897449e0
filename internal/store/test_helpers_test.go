package store

import (
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vaultorm/internal/auth"
	"github.com/roach88/vaultorm/internal/cipher"
)

const testRoot = "/db"

// stepClock is a settable clock for partition date tests.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Set(date string) {
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		panic(err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.Add(12 * time.Hour)
}

type testEnv struct {
	store *Store
	fs    afero.Fs
	clock *stepClock
	logs  *test.Hook
}

// createTestStore creates a store on an in-memory filesystem, authenticated,
// with its clock at 2024-01-01.
func createTestStore(t *testing.T, mutate func(*Options)) *testEnv {
	t.Helper()

	c, err := cipher.XChaCha{}.Derive([]byte("123456"))
	require.NoError(t, err)

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	clock := &stepClock{}
	clock.Set("2024-01-01")

	fs := afero.NewMemMapFs()
	opts := Options{Root: testRoot, Fs: fs, Clock: clock, Logger: logger}
	if mutate != nil {
		mutate(&opts)
	}

	s, err := New(c, auth.StaticSession(true), opts)
	require.NoError(t, err)
	return &testEnv{store: s, fs: fs, clock: clock, logs: hook}
}

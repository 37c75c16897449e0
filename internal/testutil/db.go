// Package testutil provides deterministic fixtures for tests: a settable
// clock and an in-memory, authenticated database.
package testutil

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vaultorm/internal/auth"
	"github.com/roach88/vaultorm/internal/orm"
	"github.com/roach88/vaultorm/internal/schema"
)

// TestDescriptor is the connection descriptor used by NewTestDB.
const TestDescriptor = "db://admin:123456@/db"

// TestDB bundles a database with the fixtures it was opened with.
type TestDB struct {
	*orm.DB
	Fs    afero.Fs
	Clock *DeterministicClock
	Logs  *test.Hook
}

// NewTestDB builds the schema declared by declare and opens it on an
// in-memory filesystem with an authenticated session.
func NewTestDB(t *testing.T, declare func(b *schema.Builder), opts ...orm.Option) *TestDB {
	t.Helper()

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	b := schema.NewBuilder().WithLogger(logger)
	declare(b)
	reg, err := b.Build()
	require.NoError(t, err)

	fs := afero.NewMemMapFs()
	clock := NewDeterministicClock()

	all := append([]orm.Option{
		orm.WithFs(fs),
		orm.WithClock(clock),
		orm.WithLogger(logger),
		orm.WithSession(auth.StaticSession(true)),
	}, opts...)

	db, err := orm.Open(TestDescriptor, reg, all...)
	require.NoError(t, err)

	return &TestDB{DB: db, Fs: fs, Clock: clock, Logs: hook}
}

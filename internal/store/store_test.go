package store

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vaultorm/internal/auth"
	"github.com/roach88/vaultorm/internal/cipher"
	"github.com/roach88/vaultorm/internal/codec"
	"github.com/roach88/vaultorm/internal/ir"
	"github.com/roach88/vaultorm/internal/metrics"
)

func TestNew_Validation(t *testing.T) {
	c, err := cipher.XChaCha{}.Derive([]byte("pw"))
	require.NoError(t, err)

	_, err = New(nil, auth.StaticSession(true), Options{Root: "/db"})
	assert.Error(t, err)
	_, err = New(c, nil, Options{Root: "/db"})
	assert.Error(t, err)
	_, err = New(c, auth.StaticSession(true), Options{})
	assert.Error(t, err)

	s, err := New(c, auth.StaticSession(true), Options{Root: "/db", Fs: afero.NewMemMapFs()})
	require.NoError(t, err)
	assert.Equal(t, "/db", s.Root())
	assert.Equal(t, SkipPartition, s.Policy())
}

func TestPathFor_Layout(t *testing.T) {
	env := createTestStore(t, nil)

	path, err := env.store.PathFor("Book", env.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, "/db/2024/01/01/Book.pu", path)

	exists, err := afero.DirExists(env.fs, "/db/2024/01/01")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestPathFor_CustomExtension(t *testing.T) {
	env := createTestStore(t, func(o *Options) { o.Extension = "vault" })

	path, err := env.store.PathFor("Book", env.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, "/db/2024/01/01/Book.vault", path)
}

func TestAppend_LoadRoundTrip(t *testing.T) {
	env := createTestStore(t, nil)
	ctx := context.Background()

	p, err := env.store.Append(ctx, "Book", ir.Record{"id": "b1", "title": "Go", "pages": 300})
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01", p.Date)
	assert.Positive(t, p.Size)

	_, err = env.store.Append(ctx, "Book", ir.Record{"id": "b2", "title": "Rust"})
	require.NoError(t, err)

	records, err := env.store.Load(ctx, p)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, ir.Record{"id": "b1", "title": "Go", "pages": int64(300)}, records[0])
	assert.Equal(t, "b2", records[1].ID())
}

func TestAppend_EncryptsPartition(t *testing.T) {
	env := createTestStore(t, nil)

	p, err := env.store.Append(context.Background(), "Book", ir.Record{"id": "b1", "title": "plaintext-marker"})
	require.NoError(t, err)

	raw, err := afero.ReadFile(env.fs, p.Path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "plaintext-marker")
}

func TestAppend_PartitionDeterminism(t *testing.T) {
	env := createTestStore(t, nil)
	ctx := context.Background()

	a, err := env.store.Append(ctx, "Book", ir.Record{"id": "1"})
	require.NoError(t, err)
	b, err := env.store.Append(ctx, "Book", ir.Record{"id": "2"})
	require.NoError(t, err)
	assert.Equal(t, a.Path, b.Path)

	env.clock.Set("2024-01-02")
	c, err := env.store.Append(ctx, "Book", ir.Record{"id": "3"})
	require.NoError(t, err)
	assert.NotEqual(t, a.Path, c.Path)
	assert.Equal(t, "/db/2024/01/02/Book.pu", c.Path)
}

func TestAppend_Unauthorized(t *testing.T) {
	c, err := cipher.XChaCha{}.Derive([]byte("pw"))
	require.NoError(t, err)
	s, err := New(c, auth.StaticSession(false), Options{Root: "/db", Fs: afero.NewMemMapFs()})
	require.NoError(t, err)

	_, err = s.Append(context.Background(), "Book", ir.Record{"id": "1"})
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = s.Delete(context.Background(), "Book", map[string]any{"id": "1"})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestScan_NewestFirstAndRange(t *testing.T) {
	env := createTestStore(t, nil)
	ctx := context.Background()

	for _, d := range []string{"2024-01-02", "2023-12-31", "2024-01-05"} {
		env.clock.Set(d)
		_, err := env.store.Append(ctx, "Book", ir.Record{"id": d})
		require.NoError(t, err)
	}

	all, err := env.store.Scan(ctx, "Book", nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"2024-01-05", "2024-01-02", "2023-12-31"}, dates(all))

	rng, err := NewDateRange("2024-01-01", "2024-01-02")
	require.NoError(t, err)
	some, err := env.store.Scan(ctx, "Book", &rng)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-02"}, dates(some))
}

func TestScan_ExactFileMatch(t *testing.T) {
	env := createTestStore(t, nil)
	ctx := context.Background()

	_, err := env.store.Append(ctx, "Book", ir.Record{"id": "1"})
	require.NoError(t, err)
	_, err = env.store.Append(ctx, "BookAuthorsThrough", ir.Record{"id": "2"})
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(env.fs, "/db/2024/01/01/notes.txt", []byte("x"), 0o644))
	require.NoError(t, afero.WriteFile(env.fs, "/db/stray/Book.pu", []byte("x"), 0o644))

	parts, err := env.store.Scan(ctx, "Book", nil)
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, "/db/2024/01/01/Book.pu", parts[0].Path)

	models, err := env.store.Models(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Book", "BookAuthorsThrough"}, models)
}

func TestScan_MissingRoot(t *testing.T) {
	env := createTestStore(t, nil)
	parts, err := env.store.Scan(context.Background(), "Book", nil)
	require.NoError(t, err)
	assert.Empty(t, parts)
}

func TestNewDateRange_Invalid(t *testing.T) {
	_, err := NewDateRange("2024-1-1", "2024-01-02")
	assert.Error(t, err)
	_, err = NewDateRange("2024-01-01", "tomorrow")
	assert.Error(t, err)

	r, err := NewDateRange("2024-01-01", "2024-01-31")
	require.NoError(t, err)
	assert.True(t, r.Contains("2024-01-01"))
	assert.True(t, r.Contains("2024-01-31"))
	assert.False(t, r.Contains("2024-02-01"))
}

func TestDelete(t *testing.T) {
	env := createTestStore(t, nil)
	ctx := context.Background()

	_, err := env.store.Append(ctx, "Task", ir.Record{"id": "1", "status": "done"})
	require.NoError(t, err)
	_, err = env.store.Append(ctx, "Task", ir.Record{"id": "2", "status": "open"})
	require.NoError(t, err)
	env.clock.Set("2024-01-02")
	_, err = env.store.Append(ctx, "Task", ir.Record{"id": "3", "status": "done"})
	require.NoError(t, err)

	n, err := env.store.Delete(ctx, "Task", map[string]any{"status": "done"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ids := loadIDs(t, env.store, "Task")
	assert.Equal(t, []string{"2"}, ids)
}

func TestDelete_RequiresEveryFieldToMatch(t *testing.T) {
	env := createTestStore(t, nil)
	ctx := context.Background()

	_, err := env.store.Append(ctx, "Task", ir.Record{"id": "1", "status": "done", "owner": "a"})
	require.NoError(t, err)
	_, err = env.store.Append(ctx, "Task", ir.Record{"id": "2", "status": "done", "owner": "b"})
	require.NoError(t, err)

	n, err := env.store.Delete(ctx, "Task", map[string]any{"status": "done", "owner": "b"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"1"}, loadIDs(t, env.store, "Task"))

	n, err = env.store.Delete(ctx, "Task", map[string]any{"status": "missing"})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDelete_ResetsIndex(t *testing.T) {
	env := createTestStore(t, nil)
	ctx := context.Background()

	p, err := env.store.Append(ctx, "Task", ir.Record{"id": "1"})
	require.NoError(t, err)
	_, err = env.store.Load(ctx, p)
	require.NoError(t, err)
	require.True(t, env.store.Index("Task").Loaded(p.Date))

	_, err = env.store.Delete(ctx, "Task", map[string]any{"id": "1"})
	require.NoError(t, err)
	assert.False(t, env.store.Index("Task").Loaded(p.Date))
	assert.Empty(t, env.store.Index("Task").Lookup("id", "1", ""))
}

func TestAppend_IndexesWholePartitionOnce(t *testing.T) {
	env := createTestStore(t, nil)
	ctx := context.Background()

	_, err := env.store.Append(ctx, "Task", ir.Record{"id": "1"})
	require.NoError(t, err)
	p, err := env.store.Append(ctx, "Task", ir.Record{"id": "2"})
	require.NoError(t, err)

	idx := env.store.Index("Task")
	assert.True(t, idx.Loaded(p.Date))
	assert.Len(t, idx.Lookup("id", "1", ""), 1)
	assert.Len(t, idx.Lookup("id", "2", ""), 1)

	// Reading again must not double index.
	_, err = env.store.Load(ctx, p)
	require.NoError(t, err)
	assert.Len(t, idx.Lookup("id", "1", ""), 1)
}

func TestLoad_CorruptSkip(t *testing.T) {
	env := createTestStore(t, nil)
	ctx := context.Background()

	require.NoError(t, env.fs.MkdirAll("/db/2024/01/01", 0o755))
	require.NoError(t, afero.WriteFile(env.fs, "/db/2024/01/01/Book.pu", []byte("garbage"), 0o600))

	before := testutil.ToFloat64(metrics.CorruptPartitionsTotal.WithLabelValues("Book"))

	parts, err := env.store.Scan(ctx, "Book", nil)
	require.NoError(t, err)
	require.Len(t, parts, 1)

	records, err := env.store.Load(ctx, parts[0])
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.False(t, env.store.Index("Book").Loaded("2024-01-01"))

	assert.Equal(t, before+1, testutil.ToFloat64(metrics.CorruptPartitionsTotal.WithLabelValues("Book")))
	entry := env.logs.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "skipping corrupt partition", entry.Message)
}

func TestLoad_CorruptFail(t *testing.T) {
	env := createTestStore(t, func(o *Options) { o.OnCorruption = FailOnCorruption })
	ctx := context.Background()

	require.NoError(t, env.fs.MkdirAll("/db/2024/01/01", 0o755))
	require.NoError(t, afero.WriteFile(env.fs, "/db/2024/01/01/Book.pu", []byte("garbage"), 0o600))

	parts, err := env.store.Scan(ctx, "Book", nil)
	require.NoError(t, err)

	_, err = env.store.Load(ctx, parts[0])
	require.Error(t, err)
	assert.True(t, IsCorruptionError(err))
	assert.ErrorIs(t, err, cipher.ErrDecrypt)

	_, err = env.store.Append(ctx, "Book", ir.Record{"id": "1"})
	assert.True(t, IsCorruptionError(err))
}

func TestLoad_WrongKeyIsCorruption(t *testing.T) {
	env := createTestStore(t, nil)
	ctx := context.Background()

	p, err := env.store.Append(ctx, "Book", ir.Record{"id": "1"})
	require.NoError(t, err)

	other, err := cipher.XChaCha{}.Derive([]byte("other password"))
	require.NoError(t, err)
	s2, err := New(other, auth.StaticSession(true), Options{
		Root: testRoot, Fs: env.fs, OnCorruption: FailOnCorruption, CacheSize: -1,
	})
	require.NoError(t, err)

	_, err = s2.Load(ctx, p)
	assert.True(t, IsCorruptionError(err))
}

func TestAppend_OverCorruptPartitionSkips(t *testing.T) {
	env := createTestStore(t, nil)
	ctx := context.Background()

	require.NoError(t, env.fs.MkdirAll("/db/2024/01/01", 0o755))
	require.NoError(t, afero.WriteFile(env.fs, "/db/2024/01/01/Book.pu", []byte("garbage"), 0o600))

	_, err := env.store.Append(ctx, "Book", ir.Record{"id": "1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, loadIDs(t, env.store, "Book"))
}

func TestCodecs_ReadAcrossChanges(t *testing.T) {
	for _, c := range []codec.Codec{codec.None, codec.Gzip, codec.Snappy, codec.Zstd} {
		t.Run(c.String(), func(t *testing.T) {
			env := createTestStore(t, func(o *Options) { o.Codec = c })
			ctx := context.Background()

			_, err := env.store.Append(ctx, "Book", ir.Record{"id": "1", "title": "first"})
			require.NoError(t, err)

			// A store with a different codec reads the same files and keeps appending.
			key, err := cipher.XChaCha{}.Derive([]byte("123456"))
			require.NoError(t, err)
			s2, err := New(key, auth.StaticSession(true), Options{
				Root: testRoot, Fs: env.fs, Clock: env.clock, Codec: codec.Gzip, CacheSize: -1,
			})
			require.NoError(t, err)
			_, err = s2.Append(ctx, "Book", ir.Record{"id": "2"})
			require.NoError(t, err)

			assert.Equal(t, []string{"1", "2"}, loadIDs(t, env.store, "Book"))
		})
	}
}

func TestLoad_CacheHit(t *testing.T) {
	env := createTestStore(t, nil)
	ctx := context.Background()

	p, err := env.store.Append(ctx, "CacheBook", ir.Record{"id": "1"})
	require.NoError(t, err)

	hits := func() float64 {
		return testutil.ToFloat64(metrics.PartitionCacheHitsTotal.WithLabelValues("CacheBook"))
	}
	before := hits()

	_, err = env.store.Load(ctx, p)
	require.NoError(t, err)
	_, err = env.store.Load(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, before+1, hits())
}

func TestLoad_ContextCanceled(t *testing.T) {
	env := createTestStore(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.store.Load(ctx, Partition{Model: "Book", Date: "2024-01-01", Path: "/db/2024/01/01/Book.pu"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("fail")
	require.NoError(t, err)
	assert.Equal(t, FailOnCorruption, p)
	assert.Equal(t, "fail", p.String())

	p, err = ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, SkipPartition, p)

	_, err = ParsePolicy("ignore")
	assert.Error(t, err)
}

func dates(parts []Partition) []string {
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = p.Date
	}
	return out
}

// loadIDs returns the ids of every record of model, oldest partition first.
func loadIDs(t *testing.T, s *Store, model string) []string {
	t.Helper()
	ctx := context.Background()

	parts, err := s.Scan(ctx, model, nil)
	require.NoError(t, err)

	var ids []string
	for i := len(parts) - 1; i >= 0; i-- {
		records, err := s.Load(ctx, parts[i])
		require.NoError(t, err)
		for _, r := range records {
			ids = append(ids, r.ID())
		}
	}
	return ids
}

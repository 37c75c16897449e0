package store

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/roach88/vaultorm/internal/auth"
	"github.com/roach88/vaultorm/internal/cipher"
	"github.com/roach88/vaultorm/internal/codec"
	"github.com/roach88/vaultorm/internal/index"
)

// DefaultExtension is the partition file extension used when none is set.
const DefaultExtension = "pu"

// DefaultCacheSize is the number of decoded partitions cached by default.
const DefaultCacheSize = 64

// Clock supplies the moment of a write, which selects its partition.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now calls f().
func (f ClockFunc) Now() time.Time { return f() }

// Options configures a Store. Zero values select defaults.
type Options struct {
	// Root is the storage root directory.
	Root string

	// Extension is the partition file extension, without the dot.
	Extension string

	// Codec compresses partition plaintext on write. Reads detect the codec.
	Codec codec.Codec

	// OnCorruption selects how undecryptable partitions are treated.
	OnCorruption CorruptionPolicy

	// CacheSize bounds the decoded-partition cache. Zero selects
	// DefaultCacheSize and a negative value disables the cache.
	CacheSize int

	Clock  Clock
	Logger logrus.FieldLogger
	Fs     afero.Fs
}

// Store reads and writes the partitions of one storage root.
//
// Thread-safety: all methods are safe for concurrent use. Writes to one model
// are serialized; reads of a model wait for an in-flight write to finish.
type Store struct {
	opts    Options
	cipher  cipher.Cipher
	session auth.Session
	cache   *lru.Cache
	indexes *index.Registry
	log     logrus.FieldLogger

	locksMu sync.Mutex
	locks   map[string]*sync.RWMutex
}

// New returns a Store sealing partitions with c and authorizing writes with
// session.
func New(c cipher.Cipher, session auth.Session, opts Options) (*Store, error) {
	if c == nil {
		return nil, fmt.Errorf("new store: nil cipher")
	}
	if session == nil {
		return nil, fmt.Errorf("new store: nil session")
	}
	if opts.Root == "" {
		return nil, fmt.Errorf("new store: empty root")
	}
	if opts.Extension == "" {
		opts.Extension = DefaultExtension
	}
	if opts.Clock == nil {
		opts.Clock = ClockFunc(time.Now)
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.CacheSize == 0 {
		opts.CacheSize = DefaultCacheSize
	}

	s := &Store{
		opts:    opts,
		cipher:  c,
		session: session,
		indexes: index.NewRegistry(),
		log:     opts.Logger.WithField("root", opts.Root),
		locks:   make(map[string]*sync.RWMutex),
	}

	if opts.CacheSize > 0 {
		cache, err := lru.New(opts.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("new store: %w", err)
		}
		s.cache = cache
	}
	return s, nil
}

// Root returns the storage root directory.
func (s *Store) Root() string { return s.opts.Root }

// Fs returns the filesystem partitions live on.
func (s *Store) Fs() afero.Fs { return s.opts.Fs }

// Policy returns the configured corruption policy.
func (s *Store) Policy() CorruptionPolicy { return s.opts.OnCorruption }

// Now returns the store clock's current time.
func (s *Store) Now() time.Time { return s.opts.Clock.Now() }

// Index returns the secondary index of model.
func (s *Store) Index(model string) *index.ModelIndex {
	return s.indexes.For(model)
}

func (s *Store) lockFor(model string) *sync.RWMutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	mu, ok := s.locks[model]
	if !ok {
		mu = &sync.RWMutex{}
		s.locks[model] = mu
	}
	return mu
}

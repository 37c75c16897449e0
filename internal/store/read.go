package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/roach88/vaultorm/internal/codec"
	"github.com/roach88/vaultorm/internal/ir"
	"github.com/roach88/vaultorm/internal/metrics"
)

type cachedPartition struct {
	size    int64
	modTime time.Time
	records []ir.Record
}

// Load decodes partition p and indexes it if its date is not indexed yet.
//
// The returned records are shared with the cache and the index; callers
// must Clone a record before mutating it. A corrupt partition is handled per
// the store's CorruptionPolicy: SkipPartition returns (nil, nil).
func (s *Store) Load(ctx context.Context, p Partition) ([]ir.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mu := s.lockFor(p.Model)
	mu.RLock()
	defer mu.RUnlock()

	records, err := s.readPartition(p)
	if err != nil {
		return nil, s.recover(err)
	}
	s.Index(p.Model).AddPartition(p.Date, records)
	return records, nil
}

// recover applies the corruption policy to a read error.
func (s *Store) recover(err error) error {
	var ce *CorruptionError
	if !errors.As(err, &ce) {
		return err
	}

	metrics.CorruptPartitionsTotal.WithLabelValues(ce.Model).Inc()
	if s.opts.OnCorruption == FailOnCorruption {
		return err
	}
	s.log.WithFields(logrus.Fields{
		"model": ce.Model,
		"date":  ce.Date,
		"path":  ce.Path,
		"err":   ce.Err,
	}).Warn("skipping corrupt partition")
	return nil
}

// readPartition returns the decoded records of p. A missing file is an empty
// partition. Decrypt, codec and JSON failures are CorruptionErrors.
func (s *Store) readPartition(p Partition) ([]ir.Record, error) {
	info, err := s.opts.Fs.Stat(p.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat partition: %w", err)
	}

	if s.cache != nil {
		if v, ok := s.cache.Get(p.Path); ok {
			c := v.(cachedPartition)
			if c.size == info.Size() && c.modTime.Equal(info.ModTime()) {
				metrics.PartitionCacheHitsTotal.WithLabelValues(p.Model).Inc()
				return c.records, nil
			}
			s.cache.Remove(p.Path)
		}
	}

	data, err := afero.ReadFile(s.opts.Fs, p.Path)
	if err != nil {
		return nil, fmt.Errorf("read partition: %w", err)
	}
	records, err := s.decode(data)
	if err != nil {
		return nil, &CorruptionError{Model: p.Model, Date: p.Date, Path: p.Path, Err: err}
	}
	metrics.PartitionsReadTotal.WithLabelValues(p.Model).Inc()

	if s.cache != nil {
		s.cache.Add(p.Path, cachedPartition{size: info.Size(), modTime: info.ModTime(), records: records})
	}
	return records, nil
}

func (s *Store) decode(data []byte) ([]ir.Record, error) {
	plaintext, err := s.cipher.Decrypt(data)
	if err != nil {
		return nil, err
	}
	raw, err := codec.Decode(plaintext)
	if err != nil {
		return nil, err
	}
	return ir.UnmarshalRecords(raw)
}

func (s *Store) encode(records []ir.Record) ([]byte, error) {
	raw, err := ir.MarshalRecords(records)
	if err != nil {
		return nil, err
	}
	compressed, err := codec.Encode(s.opts.Codec, raw)
	if err != nil {
		return nil, err
	}
	return s.cipher.Encrypt(compressed)
}

package store

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/roach88/vaultorm/internal/ir"
	"github.com/roach88/vaultorm/internal/metrics"
)

// Append adds rec to today's partition of model and returns that partition.
//
// The partition is decoded, extended and rewritten whole. A corrupt existing
// partition is treated as empty under SkipPartition, which discards its
// undecodable content on rewrite.
func (s *Store) Append(ctx context.Context, model string, rec ir.Record) (Partition, error) {
	if !s.session.IsAuthenticated() {
		return Partition{}, ErrUnauthorized
	}
	if err := ctx.Err(); err != nil {
		return Partition{}, err
	}

	mu := s.lockFor(model)
	mu.Lock()
	defer mu.Unlock()

	now := s.opts.Clock.Now()
	path, err := s.PathFor(model, now)
	if err != nil {
		return Partition{}, fmt.Errorf("append %s: %w", model, err)
	}
	p := Partition{Model: model, Date: now.Format(DateLayout), Path: path}

	existing, err := s.readPartition(p)
	if err != nil {
		if err := s.recover(err); err != nil {
			return Partition{}, fmt.Errorf("append %s: %w", model, err)
		}
		existing = nil
	}

	added := rec.Clone()
	records := make([]ir.Record, 0, len(existing)+1)
	records = append(records, existing...)
	records = append(records, added)

	size, err := s.writePartition(p, records)
	if err != nil {
		return Partition{}, fmt.Errorf("append %s: %w", model, err)
	}
	p.Size = size

	s.Index(model).Append(p.Date, records, added)
	metrics.RecordsAppendedTotal.WithLabelValues(model).Inc()
	return p, nil
}

// Delete removes every record of model whose fields equal all of match, in
// every partition, and returns the number removed. Partitions without a match
// are not rewritten. An empty match removes every record.
func (s *Store) Delete(ctx context.Context, model string, match map[string]any) (int, error) {
	if !s.session.IsAuthenticated() {
		return 0, ErrUnauthorized
	}

	partitions, err := s.Scan(ctx, model, nil)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", model, err)
	}

	mu := s.lockFor(model)
	mu.Lock()
	defer mu.Unlock()

	total := 0
	defer func() {
		if total > 0 {
			s.Index(model).Reset()
			metrics.RecordsDeletedTotal.WithLabelValues(model).Add(float64(total))
		}
	}()

	for _, p := range partitions {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		records, err := s.readPartition(p)
		if err != nil {
			if err := s.recover(err); err != nil {
				return total, fmt.Errorf("delete %s: %w", model, err)
			}
			continue
		}

		kept := make([]ir.Record, 0, len(records))
		for _, rec := range records {
			if !matchesAll(rec, match) {
				kept = append(kept, rec)
			}
		}
		removed := len(records) - len(kept)
		if removed == 0 {
			continue
		}

		if _, err := s.writePartition(p, kept); err != nil {
			return total, fmt.Errorf("delete %s: %w", model, err)
		}
		total += removed
		s.log.WithFields(logrus.Fields{
			"model":   model,
			"date":    p.Date,
			"removed": removed,
		}).Debug("rewrote partition")
	}
	return total, nil
}

func matchesAll(rec ir.Record, match map[string]any) bool {
	for field, want := range match {
		if !ir.Equal(rec[field], want) {
			return false
		}
	}
	return true
}

// writePartition seals records and replaces the file at p.Path.
func (s *Store) writePartition(p Partition, records []ir.Record) (int64, error) {
	data, err := s.encode(records)
	if err != nil {
		return 0, fmt.Errorf("encode partition: %w", err)
	}

	tmp := p.Path + ".tmp"
	if err := afero.WriteFile(s.opts.Fs, tmp, data, 0o600); err != nil {
		return 0, fmt.Errorf("write partition: %w", err)
	}
	if err := s.opts.Fs.Rename(tmp, p.Path); err != nil {
		_ = s.opts.Fs.Remove(tmp)
		return 0, fmt.Errorf("replace partition: %w", err)
	}

	if s.cache != nil {
		s.cache.Remove(p.Path)
	}
	metrics.PartitionsWrittenTotal.WithLabelValues(p.Model).Inc()
	return int64(len(data)), nil
}

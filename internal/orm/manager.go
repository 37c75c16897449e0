package orm

import (
	"context"
	"fmt"

	"github.com/roach88/vaultorm/internal/schema"
)

// Manager manages one instance's many-to-many relation through its junction
// model. Membership is read lazily and cached until the next Add, Remove or
// Clear.
type Manager struct {
	owner   *Instance
	field   string
	through string
	target  string

	qs *QuerySet
}

// QuerySet returns the target instances linked to the owner.
func (m *Manager) QuerySet(ctx context.Context) (*QuerySet, error) {
	if m.qs != nil {
		return m.qs, nil
	}

	links, err := m.links(ctx, nil)
	if err != nil {
		return nil, err
	}
	m.qs = m.owner.db.Objects(m.target).Filter(map[string]any{"id__in": linkedIDs(links, schema.ToField)})
	return m.qs, nil
}

func (m *Manager) links(ctx context.Context, target *Instance) ([]*Instance, error) {
	filter := map[string]any{schema.FromField: m.owner.ID()}
	if target != nil {
		filter[schema.ToField] = target.ID()
	}
	links, err := m.owner.db.Objects(m.through).Filter(filter).All(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", m.owner.model.Name, m.field, err)
	}
	return links, nil
}

// All returns the linked target instances.
func (m *Manager) All(ctx context.Context) ([]*Instance, error) {
	qs, err := m.QuerySet(ctx)
	if err != nil {
		return nil, err
	}
	return qs.All(ctx)
}

// Len returns the number of linked target instances.
func (m *Manager) Len(ctx context.Context) (int, error) {
	qs, err := m.QuerySet(ctx)
	if err != nil {
		return 0, err
	}
	return qs.Count(ctx)
}

// At returns the linked target instance at position i.
func (m *Manager) At(ctx context.Context, i int) (*Instance, error) {
	qs, err := m.QuerySet(ctx)
	if err != nil {
		return nil, err
	}
	return qs.At(ctx, i)
}

// Filter narrows the linked target instances.
func (m *Manager) Filter(ctx context.Context, filters map[string]any) (*QuerySet, error) {
	qs, err := m.QuerySet(ctx)
	if err != nil {
		return nil, err
	}
	return qs.Filter(filters), nil
}

// Add links targets to the owner. Pairs already linked are skipped.
func (m *Manager) Add(ctx context.Context, targets ...*Instance) error {
	defer m.invalidate()

	for _, target := range targets {
		if target == nil {
			continue
		}
		if target.model.Name != m.target {
			return fmt.Errorf("%s.%s: cannot link a %s", m.owner.model.Name, m.field, target.model.Name)
		}

		existing, err := m.owner.db.Objects(m.through).Filter(map[string]any{
			schema.FromField: m.owner.ID(),
			schema.ToField:   target.ID(),
		}).First(ctx)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", m.owner.model.Name, m.field, err)
		}
		if existing != nil {
			continue
		}

		link, err := m.owner.db.New(m.through, map[string]any{
			schema.FromField: m.owner.ID(),
			schema.ToField:   target.ID(),
		})
		if err != nil {
			return err
		}
		if err := link.Save(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Remove unlinks target and returns the number of junction records removed.
// A nil target removes nothing.
func (m *Manager) Remove(ctx context.Context, target *Instance) (int, error) {
	if target == nil {
		return 0, nil
	}
	defer m.invalidate()
	return m.owner.db.Delete(ctx, m.through, map[string]any{
		schema.FromField: m.owner.ID(),
		schema.ToField:   target.ID(),
	})
}

// Clear unlinks every target and returns the number of junction records
// removed.
func (m *Manager) Clear(ctx context.Context) (int, error) {
	defer m.invalidate()
	return m.owner.db.Delete(ctx, m.through, map[string]any{
		schema.FromField: m.owner.ID(),
	})
}

func (m *Manager) invalidate() { m.qs = nil }

package orm

import (
	"context"
	"fmt"

	"github.com/roach88/vaultorm/internal/schema"
)

// ResolvedKind tags the result of Instance.Resolve.
type ResolvedKind int

const (
	// ResolvedValue is a plain stored field value.
	ResolvedValue ResolvedKind = iota + 1

	// ResolvedInstance is a forward foreign key or one-to-one target, or a
	// one-to-one reverse match. Instance may be nil.
	ResolvedInstance

	// ResolvedManager is a many-to-many field.
	ResolvedManager

	// ResolvedQuerySets is a reverse foreign key or many-to-many relation,
	// one QuerySet per relation registered under the name.
	ResolvedQuerySets
)

func (k ResolvedKind) String() string {
	switch k {
	case ResolvedValue:
		return "value"
	case ResolvedInstance:
		return "instance"
	case ResolvedManager:
		return "manager"
	case ResolvedQuerySets:
		return "querysets"
	default:
		return fmt.Sprintf("ResolvedKind(%d)", int(k))
	}
}

// Resolved is the tagged result of Resolve. Only the member matching Kind is
// set.
type Resolved struct {
	Kind      ResolvedKind
	Value     any
	Instance  *Instance
	Manager   *Manager
	QuerySets []*QuerySet
}

// Resolve looks name up as, in order: a foreign key or one-to-one field, a
// many-to-many field, a plain stored field, then a reverse relation.
func (i *Instance) Resolve(ctx context.Context, name string) (Resolved, error) {
	if rel, ok := i.model.Relation(name); ok {
		if rel.Kind == schema.ManyToMany {
			m, err := i.Many(name)
			if err != nil {
				return Resolved{}, err
			}
			return Resolved{Kind: ResolvedManager, Manager: m}, nil
		}
		target, err := i.Related(ctx, name)
		if err != nil {
			return Resolved{}, err
		}
		return Resolved{Kind: ResolvedInstance, Instance: target}, nil
	}

	if v, ok := i.values[name]; ok {
		return Resolved{Kind: ResolvedValue, Value: v}, nil
	}

	entries := i.model.Reverse(name)
	if len(entries) == 0 {
		return Resolved{}, fmt.Errorf("%w: %s.%s", ErrUnknownField, i.model.Name, name)
	}

	allOneToOne := true
	for _, e := range entries {
		if e.Kind != schema.OneToOne {
			allOneToOne = false
			break
		}
	}
	if allOneToOne {
		found, err := i.ReverseOne(ctx, name)
		if err != nil {
			return Resolved{}, err
		}
		return Resolved{Kind: ResolvedInstance, Instance: found}, nil
	}

	sets, err := i.ReverseSets(ctx, name)
	if err != nil {
		return Resolved{}, err
	}
	return Resolved{Kind: ResolvedQuerySets, QuerySets: sets}, nil
}

package harness

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/roach88/vaultorm/internal/auth"
	"github.com/roach88/vaultorm/internal/compiler"
	"github.com/roach88/vaultorm/internal/orm"
	"github.com/roach88/vaultorm/internal/schema"
	"github.com/roach88/vaultorm/internal/testutil"
)

// descriptor opens every scenario database. The password keys the cipher.
const descriptor = "mem://harness:harness@/scenario"

// Harness executes scenario steps against one database.
type Harness struct {
	db    *orm.DB
	clock *testutil.DeterministicClock
	log   logrus.FieldLogger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database. Step failures and
// failed assertions are reported in the Result; the returned error is for
// scenarios that cannot run at all (bad schema).
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	reg, err := loadSchema(scenario, logger)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	clock := testutil.NewDeterministicClock()
	db, err := orm.Open(descriptor, reg,
		orm.WithFs(afero.NewMemMapFs()),
		orm.WithClock(clock),
		orm.WithLogger(logger),
		orm.WithSession(auth.StaticSession(true)),
	)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	h := &Harness{db: db, clock: clock, log: logger.WithField("scenario", scenario.Name)}
	result := NewResult()
	for i, step := range scenario.Steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		h.execute(ctx, i, step, result)
	}

	for _, msg := range EvaluateAssertions(ctx, db, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func loadSchema(s *Scenario, log logrus.FieldLogger) (*schema.Registry, error) {
	var (
		decls []compiler.ModelDecl
		err   error
	)
	if s.Schema != "" {
		decls, err = compiler.LoadString(s.Schema, s.Name+".cue")
	} else {
		decls, err = compiler.LoadFile(s.SchemaFile)
	}
	if err != nil {
		return nil, err
	}
	return compiler.BuildRegistry(decls, log)
}

// outcome is what a step produced, for tracing and expectations.
type outcome struct {
	model  string
	args   map[string]any
	ids    []string
	count  int
	result map[string]any
}

func (h *Harness) execute(ctx context.Context, i int, step Step, result *Result) {
	kind := step.Kind()

	var (
		out    outcome
		expect *Expect
		err    error
	)
	switch kind {
	case StepAt:
		h.clock.SetDate(step.At)
		result.AddTrace(TraceEvent{Step: StepAt, Date: h.clock.Date()})
		return
	case StepSave:
		expect = step.Save.Expect
		out, err = h.save(ctx, step.Save)
	case StepLink:
		expect = step.Link.Expect
		out, err = h.link(ctx, step.Link)
	case StepUnlink:
		expect = step.Unlink.Expect
		out, err = h.unlink(ctx, step.Unlink)
	case StepUpdate:
		expect = step.Update.Expect
		out, err = h.update(ctx, step.Update)
	case StepDelete:
		expect = step.Delete.Expect
		out, err = h.delete(ctx, step.Delete)
	case StepQuery:
		expect = step.Query.Expect
		out, err = h.query(ctx, step.Query)
	default:
		result.AddError(fmt.Sprintf("steps[%d]: invalid step", i))
		return
	}

	ev := TraceEvent{Step: kind, Date: h.clock.Date(), Model: out.model, Args: out.args, Result: out.result}
	if err != nil {
		ev.Result = nil
		ev.Error = err.Error()
	}
	result.AddTrace(ev)

	h.log.WithFields(logrus.Fields{"step": i, "kind": kind, "model": out.model}).Debug("step executed")

	for _, msg := range checkExpect(expect, out, err) {
		result.AddError(fmt.Sprintf("steps[%d] %s: %s", i, kind, msg))
	}
}

func checkExpect(expect *Expect, out outcome, err error) []string {
	if expect == nil {
		if err != nil {
			return []string{fmt.Sprintf("unexpected error: %v", err)}
		}
		return nil
	}

	if expect.Error != "" {
		if err == nil {
			return []string{fmt.Sprintf("expected error containing %q, got none", expect.Error)}
		}
		if !strings.Contains(err.Error(), expect.Error) {
			return []string{fmt.Sprintf("expected error containing %q, got %q", expect.Error, err.Error())}
		}
		return nil
	}
	if err != nil {
		return []string{fmt.Sprintf("unexpected error: %v", err)}
	}

	var msgs []string
	if expect.IDs != nil && !slices.Equal(expect.IDs, out.ids) {
		msgs = append(msgs, fmt.Sprintf("expected ids %v, got %v", expect.IDs, out.ids))
	}
	if expect.Count != nil && *expect.Count != out.count {
		msgs = append(msgs, fmt.Sprintf("expected count %d, got %d", *expect.Count, out.count))
	}
	return msgs
}

func (h *Harness) save(ctx context.Context, s *SaveStep) (outcome, error) {
	values := make(map[string]any, len(s.Values)+1)
	for k, v := range s.Values {
		values[k] = v
	}
	if s.ID != "" {
		values[schema.IDField] = s.ID
	}
	out := outcome{model: s.Model, args: map[string]any{"values": s.Values}}
	if s.ID != "" {
		out.args["id"] = s.ID
	}

	inst, err := h.db.New(s.Model, values)
	if err != nil {
		return out, err
	}
	if err := inst.Save(ctx); err != nil {
		return out, err
	}
	out.ids, out.count = []string{inst.ID()}, 1
	out.result = map[string]any{"id": inst.ID()}
	return out, nil
}

func (h *Harness) instance(ctx context.Context, model, id string) (*orm.Instance, error) {
	inst, err := h.db.Objects(model).Filter(map[string]any{schema.IDField: id}).First(ctx)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, fmt.Errorf("no %s with id %q", model, id)
	}
	return inst, nil
}

func (h *Harness) manager(ctx context.Context, l *LinkStep) (*orm.Manager, string, error) {
	owner, err := h.instance(ctx, l.Model, l.ID)
	if err != nil {
		return nil, "", err
	}
	m, err := owner.Many(l.Field)
	if err != nil {
		return nil, "", err
	}
	rel, _ := owner.Model().Relation(l.Field)
	return m, rel.Target, nil
}

func linkArgs(l *LinkStep) map[string]any {
	args := map[string]any{"id": l.ID, "field": l.Field}
	if len(l.Targets) > 0 {
		targets := make([]any, len(l.Targets))
		for i, t := range l.Targets {
			targets[i] = t
		}
		args["targets"] = targets
	}
	if l.All {
		args["all"] = true
	}
	return args
}

func (h *Harness) link(ctx context.Context, l *LinkStep) (outcome, error) {
	out := outcome{model: l.Model, args: linkArgs(l)}
	m, target, err := h.manager(ctx, l)
	if err != nil {
		return out, err
	}

	targets := make([]*orm.Instance, 0, len(l.Targets))
	for _, id := range l.Targets {
		inst, err := h.instance(ctx, target, id)
		if err != nil {
			return out, err
		}
		targets = append(targets, inst)
	}
	if err := m.Add(ctx, targets...); err != nil {
		return out, err
	}

	n, err := m.Len(ctx)
	if err != nil {
		return out, err
	}
	out.count = n
	out.result = map[string]any{"linked": n}
	return out, nil
}

func (h *Harness) unlink(ctx context.Context, l *LinkStep) (outcome, error) {
	out := outcome{model: l.Model, args: linkArgs(l)}
	m, target, err := h.manager(ctx, l)
	if err != nil {
		return out, err
	}

	removed := 0
	if l.All {
		if removed, err = m.Clear(ctx); err != nil {
			return out, err
		}
	}
	for _, id := range l.Targets {
		inst, err := h.instance(ctx, target, id)
		if err != nil {
			return out, err
		}
		n, err := m.Remove(ctx, inst)
		if err != nil {
			return out, err
		}
		removed += n
	}
	out.count = removed
	out.result = map[string]any{"removed": removed}
	return out, nil
}

func (h *Harness) update(ctx context.Context, u *UpdateStep) (outcome, error) {
	out := outcome{model: u.Model, args: map[string]any{"match": u.Match, "set": u.Set}}
	n, err := h.db.Update(ctx, u.Model, u.Match, u.Set)
	if err != nil {
		return out, err
	}
	out.count = n
	out.result = map[string]any{"updated": n}
	return out, nil
}

func (h *Harness) delete(ctx context.Context, d *DeleteStep) (outcome, error) {
	out := outcome{model: d.Model, args: map[string]any{"match": d.Match}}
	n, err := h.db.Delete(ctx, d.Model, d.Match)
	if err != nil {
		return out, err
	}
	out.count = n
	out.result = map[string]any{"deleted": n}
	return out, nil
}

func queryArgs(q *QueryStep) map[string]any {
	args := map[string]any{}
	if len(q.Filter) > 0 {
		args["filter"] = q.Filter
	}
	if len(q.Between) == 2 {
		args["between"] = []any{q.Between[0], q.Between[1]}
	}
	if q.OrderBy != "" {
		args["order_by"] = q.OrderBy
	}
	if q.Limit > 0 {
		args["limit"] = q.Limit
	}
	if q.Page > 0 || q.PerPage > 0 {
		args["page"], args["per_page"] = q.Page, q.PerPage
	}
	if q.First {
		args["first"] = true
	}
	if q.Reverse != "" {
		args["reverse"], args["of"] = q.Reverse, q.Of
	}
	return args
}

// refine applies the query step's builders to qs.
func refine(qs *orm.QuerySet, q *QueryStep) *orm.QuerySet {
	if len(q.Filter) > 0 {
		qs = qs.Filter(q.Filter)
	}
	if len(q.Between) == 2 {
		qs = qs.Between(q.Between[0], q.Between[1])
	}
	if q.OrderBy != "" {
		qs = qs.OrderBy(q.OrderBy)
	}
	if q.Limit > 0 {
		qs = qs.Limit(q.Limit)
	}
	return qs
}

func (h *Harness) query(ctx context.Context, q *QueryStep) (outcome, error) {
	out := outcome{model: q.Model, args: queryArgs(q)}

	var (
		instances []*orm.Instance
		err       error
	)
	if q.Reverse != "" {
		instances, err = h.resolve(ctx, q)
	} else {
		instances, err = h.materialize(ctx, refine(h.db.Objects(q.Model), q), q)
	}
	if err != nil {
		return out, err
	}

	out.ids = make([]string, len(instances))
	ids := make([]any, len(instances))
	for i, inst := range instances {
		out.ids[i] = inst.ID()
		ids[i] = inst.ID()
	}
	out.count = len(instances)
	out.result = map[string]any{"ids": ids, "count": out.count}
	return out, nil
}

func (h *Harness) materialize(ctx context.Context, qs *orm.QuerySet, q *QueryStep) ([]*orm.Instance, error) {
	switch {
	case q.First:
		first, err := qs.First(ctx)
		if err != nil || first == nil {
			return nil, err
		}
		return []*orm.Instance{first}, nil
	case q.Page > 0 || q.PerPage > 0:
		return qs.Paginate(ctx, q.Page, q.PerPage)
	default:
		return qs.All(ctx)
	}
}

// resolve follows attribute q.Reverse of the instance with id q.Of.
func (h *Harness) resolve(ctx context.Context, q *QueryStep) ([]*orm.Instance, error) {
	owner, err := h.instance(ctx, q.Model, q.Of)
	if err != nil {
		return nil, err
	}
	res, err := owner.Resolve(ctx, q.Reverse)
	if err != nil {
		return nil, err
	}

	switch res.Kind {
	case orm.ResolvedInstance:
		if res.Instance == nil {
			return nil, nil
		}
		return []*orm.Instance{res.Instance}, nil
	case orm.ResolvedManager:
		qs, err := res.Manager.QuerySet(ctx)
		if err != nil {
			return nil, err
		}
		return h.materialize(ctx, refine(qs, q), q)
	case orm.ResolvedQuerySets:
		var all []*orm.Instance
		for _, qs := range res.QuerySets {
			found, err := h.materialize(ctx, refine(qs, q), q)
			if err != nil {
				return nil, err
			}
			all = append(all, found...)
		}
		return all, nil
	default:
		return nil, fmt.Errorf("%s.%s is a %s, not a relation", q.Model, q.Reverse, res.Kind)
	}
}

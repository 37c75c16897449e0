package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/vaultorm/internal/store"
)

// Scenario defines a scenario test: a schema, the steps to run against a
// fresh database and assertions on the final state.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema is inline CUE model source.
	Schema string `yaml:"schema,omitempty"`

	// SchemaFile is a CUE file, relative to the scenario file. Used when
	// Schema is empty.
	SchemaFile string `yaml:"schema_file,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one scenario step. Exactly one member is set.
type Step struct {
	At     string      `yaml:"at,omitempty"`
	Save   *SaveStep   `yaml:"save,omitempty"`
	Link   *LinkStep   `yaml:"link,omitempty"`
	Unlink *LinkStep   `yaml:"unlink,omitempty"`
	Update *UpdateStep `yaml:"update,omitempty"`
	Delete *DeleteStep `yaml:"delete,omitempty"`
	Query  *QueryStep  `yaml:"query,omitempty"`
}

// Kind returns the name of the member that is set, or "" when none or
// several are.
func (s Step) Kind() string {
	var kinds []string
	if s.At != "" {
		kinds = append(kinds, StepAt)
	}
	if s.Save != nil {
		kinds = append(kinds, StepSave)
	}
	if s.Link != nil {
		kinds = append(kinds, StepLink)
	}
	if s.Unlink != nil {
		kinds = append(kinds, StepUnlink)
	}
	if s.Update != nil {
		kinds = append(kinds, StepUpdate)
	}
	if s.Delete != nil {
		kinds = append(kinds, StepDelete)
	}
	if s.Query != nil {
		kinds = append(kinds, StepQuery)
	}
	if len(kinds) != 1 {
		return ""
	}
	return kinds[0]
}

// Step kinds.
const (
	StepAt     = "at"
	StepSave   = "save"
	StepLink   = "link"
	StepUnlink = "unlink"
	StepUpdate = "update"
	StepDelete = "delete"
	StepQuery  = "query"
)

// SaveStep creates and saves one instance.
type SaveStep struct {
	Model  string         `yaml:"model"`
	ID     string         `yaml:"id,omitempty"`
	Values map[string]any `yaml:"values,omitempty"`
	Expect *Expect        `yaml:"expect,omitempty"`
}

// LinkStep adds or removes many-to-many targets of the instance with ID.
type LinkStep struct {
	Model   string   `yaml:"model"`
	ID      string   `yaml:"id"`
	Field   string   `yaml:"field"`
	Targets []string `yaml:"targets,omitempty"`
	All     bool     `yaml:"all,omitempty"`
	Expect  *Expect  `yaml:"expect,omitempty"`
}

// UpdateStep sets fields on every instance matching Match.
type UpdateStep struct {
	Model  string         `yaml:"model"`
	Match  map[string]any `yaml:"match,omitempty"`
	Set    map[string]any `yaml:"set"`
	Expect *Expect        `yaml:"expect,omitempty"`
}

// DeleteStep removes every instance matching Match.
type DeleteStep struct {
	Model  string         `yaml:"model"`
	Match  map[string]any `yaml:"match,omitempty"`
	Expect *Expect        `yaml:"expect,omitempty"`
}

// QueryStep runs a QuerySet. Between is [from, to]. Page and PerPage select
// a page of the result; First returns at most the first match.
type QueryStep struct {
	Model   string         `yaml:"model"`
	Filter  map[string]any `yaml:"filter,omitempty"`
	Between []string       `yaml:"between,omitempty"`
	OrderBy string         `yaml:"order_by,omitempty"`
	Limit   int            `yaml:"limit,omitempty"`
	Page    int            `yaml:"page,omitempty"`
	PerPage int            `yaml:"per_page,omitempty"`
	First   bool           `yaml:"first,omitempty"`
	Reverse string         `yaml:"reverse,omitempty"`
	Of      string         `yaml:"of,omitempty"`
	Expect  *Expect        `yaml:"expect,omitempty"`
}

// Expect checks a step's outcome. IDs are compared in order.
type Expect struct {
	IDs   []string `yaml:"ids,omitempty"`
	Count *int     `yaml:"count,omitempty"`
	Error string   `yaml:"error,omitempty"`
}

// Assertion validates the final state.
type Assertion struct {
	// Type is "count" or "final_state".
	Type string `yaml:"type"`

	// Model is the model queried.
	Model string `yaml:"model"`

	// Where filters the model with lookups.
	Where map[string]any `yaml:"where,omitempty"`

	// Count is the expected number of matches (count).
	Count int `yaml:"count,omitempty"`

	// Expect contains expected field values of the first match
	// (final_state). Subset match.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertCount      = "count"
	AssertFinalState = "final_state"
)

// LoadScenario reads and parses a scenario YAML file. A relative SchemaFile
// is resolved against the scenario's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	if scenario.SchemaFile != "" && !filepath.IsAbs(scenario.SchemaFile) {
		scenario.SchemaFile = filepath.Join(filepath.Dir(path), scenario.SchemaFile)
	}
	return scenario, nil
}

// ParseScenario parses scenario YAML. Unknown fields are rejected.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Schema == "" && s.SchemaFile == "" {
		return fmt.Errorf("schema or schema_file is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, step Step) error {
	kind := step.Kind()
	if kind == "" {
		return fmt.Errorf("steps[%d]: exactly one of at, save, link, unlink, update, delete, query is required", i)
	}

	switch kind {
	case StepAt:
		if _, err := store.NewDateRange(step.At, step.At); err != nil {
			return fmt.Errorf("steps[%d].at: %w", i, err)
		}
	case StepSave:
		if step.Save.Model == "" {
			return fmt.Errorf("steps[%d].save: model is required", i)
		}
	case StepLink, StepUnlink:
		l := step.Link
		if kind == StepUnlink {
			l = step.Unlink
		}
		if l.Model == "" || l.ID == "" || l.Field == "" {
			return fmt.Errorf("steps[%d].%s: model, id and field are required", i, kind)
		}
		if kind == StepLink && l.All {
			return fmt.Errorf("steps[%d].link: all is only valid for unlink", i)
		}
		if len(l.Targets) == 0 && !l.All {
			return fmt.Errorf("steps[%d].%s: targets is required", i, kind)
		}
	case StepUpdate:
		if step.Update.Model == "" {
			return fmt.Errorf("steps[%d].update: model is required", i)
		}
		if len(step.Update.Set) == 0 {
			return fmt.Errorf("steps[%d].update: set is required", i)
		}
	case StepDelete:
		if step.Delete.Model == "" {
			return fmt.Errorf("steps[%d].delete: model is required", i)
		}
	case StepQuery:
		q := step.Query
		if q.Model == "" {
			return fmt.Errorf("steps[%d].query: model is required", i)
		}
		if len(q.Between) != 0 && len(q.Between) != 2 {
			return fmt.Errorf("steps[%d].query: between must be [from, to]", i)
		}
		if (q.Reverse == "") != (q.Of == "") {
			return fmt.Errorf("steps[%d].query: reverse and of go together", i)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a Assertion) error {
	if a.Model == "" {
		return fmt.Errorf("assertions[%d]: model is required", index)
	}

	switch a.Type {
	case AssertCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertFinalState:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

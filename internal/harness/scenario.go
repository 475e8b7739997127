package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/tallyforge/reconcile/internal/record"
	"github.com/tallyforge/reconcile/internal/scope"
)

const scenarioDateLayout = "2006-01-02"

// Scenario defines a conformance test scenario: a record population and
// the match outcome a run over it must produce.
type Scenario struct {
	// Name uniquely identifies this scenario. Doubles as the golden file
	// name.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description,omitempty"`

	// Rules optionally points at a CUE rules file, relative to the
	// scenario file. Empty means the built-in default rules.
	Rules string `yaml:"rules,omitempty"`

	// RunToken is the fixed run token. If empty, defaults to
	// "test-run-default" for deterministic golden comparison.
	RunToken string `yaml:"run_token,omitempty"`

	// Widen enables the widened second cascade pass.
	Widen bool `yaml:"widen,omitempty"`

	// Scope restricts the run. Empty means everything, apply mode.
	Scope ScopeSpec `yaml:"scope,omitempty"`

	// Records is the full population, ledger entries included.
	Records []RecordFixture `yaml:"records"`

	// Expect lists the required match outcomes. Subset semantics:
	// records not listed here may match anything.
	Expect []ExpectedMatch `yaml:"expect,omitempty"`

	// dir is the scenario file's directory, for resolving Rules.
	dir string
}

// ScopeSpec is the YAML form of a run scope.
type ScopeSpec struct {
	From    string   `yaml:"from,omitempty"`
	To      string   `yaml:"to,omitempty"`
	Sources []string `yaml:"sources,omitempty"`
}

// RecordFixture is the YAML form of one record.
type RecordFixture struct {
	ID          string            `yaml:"id"`
	Source      string            `yaml:"source"`
	Amount      string            `yaml:"amount"`
	Date        string            `yaml:"date,omitempty"`
	Name        string            `yaml:"name,omitempty"`
	Email       string            `yaml:"email,omitempty"`
	ExternalID  string            `yaml:"external_id,omitempty"`
	Description string            `yaml:"description,omitempty"`
	Attrs       map[string]string `yaml:"attrs,omitempty"`
}

// ExpectedMatch asserts the final match state of one source record.
type ExpectedMatch struct {
	ID     string `yaml:"id"`
	Source string `yaml:"source,omitempty"` // defaults to the record's feed when unambiguous
	Target string `yaml:"target"`
	Method string `yaml:"method,omitempty"`
}

// LoadScenario reads and validates a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}

	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parsing scenario %s: %w", path, err)
	}
	sc.dir = filepath.Dir(path)

	if sc.Name == "" {
		return nil, fmt.Errorf("scenario %s: missing name", path)
	}
	if len(sc.Records) == 0 {
		return nil, fmt.Errorf("scenario %s: no records", path)
	}
	if sc.RunToken == "" {
		sc.RunToken = "test-run-default"
	}
	return &sc, nil
}

// RulesPath resolves the scenario's rules file, or "" for defaults.
func (s *Scenario) RulesPath() string {
	if s.Rules == "" {
		return ""
	}
	return filepath.Join(s.dir, s.Rules)
}

// BuildRecords converts the fixtures into records.
func (s *Scenario) BuildRecords() ([]*record.Record, error) {
	out := make([]*record.Record, 0, len(s.Records))
	for i := range s.Records {
		f := &s.Records[i]
		if f.ID == "" || f.Source == "" {
			return nil, fmt.Errorf("record %d: id and source are required", i)
		}
		amount, err := decimal.NewFromString(f.Amount)
		if err != nil {
			return nil, fmt.Errorf("record %s: amount %q: %w", f.ID, f.Amount, err)
		}
		r := &record.Record{
			ID:          f.ID,
			Source:      record.SourceTag(f.Source),
			Amount:      amount,
			Name:        f.Name,
			Email:       f.Email,
			ExternalID:  f.ExternalID,
			Description: f.Description,
		}
		if f.Date != "" {
			d, err := time.Parse(scenarioDateLayout, f.Date)
			if err != nil {
				return nil, fmt.Errorf("record %s: date %q: %w", f.ID, f.Date, err)
			}
			r.Date = d
		}
		if len(f.Attrs) > 0 {
			r.Attrs = make(record.Attrs, len(f.Attrs))
			for k, v := range f.Attrs {
				r.Attrs[k] = v
			}
		}
		out = append(out, r)
	}
	return out, nil
}

// BuildScope converts the scope spec into a validated apply-mode scope.
func (s *Scenario) BuildScope() (scope.Scope, error) {
	sc := scope.Scope{Mode: scope.ModeApply}
	if s.Scope.From != "" {
		t, err := time.Parse(scenarioDateLayout, s.Scope.From)
		if err != nil {
			return sc, fmt.Errorf("scope from %q: %w", s.Scope.From, err)
		}
		sc.From = t
	}
	if s.Scope.To != "" {
		t, err := time.Parse(scenarioDateLayout, s.Scope.To)
		if err != nil {
			return sc, fmt.Errorf("scope to %q: %w", s.Scope.To, err)
		}
		sc.To = t
	}
	for _, src := range s.Scope.Sources {
		sc.Sources = append(sc.Sources, record.SourceTag(src))
	}
	if err := sc.Validate(); err != nil {
		return sc, err
	}
	return sc, nil
}

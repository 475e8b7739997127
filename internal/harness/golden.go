package harness

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Snapshot is the golden-file form of a scenario outcome: the run report
// plus the final match state of every source record.
type Snapshot struct {
	Scenario string      `json:"scenario"`
	Report   any         `json:"report"`
	Matches  []MatchLine `json:"matches"`
}

// RunWithGolden executes a scenario, enforces its expectations, and
// compares the outcome snapshot against testdata/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenarioPath string) *Result {
	t.Helper()

	sc, err := LoadScenario(scenarioPath)
	if err != nil {
		t.Fatalf("loading scenario: %v", err)
	}

	result, err := Run(context.Background(), sc)
	if err != nil {
		t.Fatalf("running scenario %s: %v", sc.Name, err)
	}

	for _, verr := range result.Verify() {
		t.Error(verr)
	}

	snap := Snapshot{
		Scenario: sc.Name,
		Report:   result.Report,
		Matches:  result.Matches,
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		t.Fatalf("marshaling snapshot: %v", err)
	}

	g := goldie.New(t)
	g.Assert(t, sc.Name, append(data, '\n'))
	return result
}

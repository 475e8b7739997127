package harness

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scenarioPath(name string) string {
	return filepath.Join("testdata", "scenarios", name)
}

func TestBasicCascadeScenario(t *testing.T) {
	result := RunWithGolden(t, scenarioPath("basic_cascade.yaml"))
	assert.Equal(t, "run-basic", result.Report.Token)
	assert.InDelta(t, 1.0, result.Report.Coverage, 1e-9)
}

func TestMerchantClassificationScenario(t *testing.T) {
	result := RunWithGolden(t, scenarioPath("merchant_classification.yaml"))
	assert.Equal(t, 1, result.Report.NeedsReview,
		"catch-all classification counts as needs-review")
}

func TestPayoutAggregationScenario(t *testing.T) {
	result := RunWithGolden(t, scenarioPath("payout_aggregation.yaml"))
	assert.Equal(t, 3, result.Report.Strategies["amount_sum_window"],
		"every grouped transaction attributes to the lump deposit")
}

func TestScenarioRunIsRepeatable(t *testing.T) {
	sc, err := LoadScenario(scenarioPath("basic_cascade.yaml"))
	require.NoError(t, err)

	first, err := Run(context.Background(), sc)
	require.NoError(t, err)
	second, err := Run(context.Background(), sc)
	require.NoError(t, err)

	assert.Equal(t, first.Matches, second.Matches)
	assert.Equal(t, first.Report.Strategies, second.Report.Strategies)
}

func TestVerifyReportsMismatches(t *testing.T) {
	sc, err := LoadScenario(scenarioPath("basic_cascade.yaml"))
	require.NoError(t, err)
	sc.Expect = []ExpectedMatch{
		{ID: "B-1", Target: "L-999"},
		{ID: "B-404", Target: "L-1"},
	}

	result, err := Run(context.Background(), sc)
	require.NoError(t, err)

	errs := result.Verify()
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0].Error(), `matched "L-1", want "L-999"`)
	assert.Contains(t, errs[1].Error(), "record not found")
}

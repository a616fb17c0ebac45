package harness

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestScenarios runs every scenario under testdata/scenarios and compares
// its trace with the matching golden file.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -run TestScenarios -update
func TestScenarios(t *testing.T) {
	files, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		scenario, err := LoadScenario(file)
		require.NoError(t, err, file)

		t.Run(scenario.Name, func(t *testing.T) {
			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "assertion failures: %v", result.Errors)
		})
	}
}

func TestMarshalTrace_Deterministic(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/failure_isolated_to_shard.yaml")
	require.NoError(t, err)

	first, err := New(WithParallelism(3)).Run(context.Background(), scenario)
	require.NoError(t, err)
	second, err := New(WithParallelism(1)).Run(context.Background(), scenario)
	require.NoError(t, err)

	a, err := MarshalTrace(scenario.Name, first)
	require.NoError(t, err)
	b, err := MarshalTrace(scenario.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestMarshalTrace_OmitsSequence(t *testing.T) {
	result, err := Run(ordersScenario())
	require.NoError(t, err)

	out, err := MarshalTrace("orders", result)
	require.NoError(t, err)
	assert.NotContains(t, string(out), `"seq"`)
	assert.Contains(t, string(out), `"target":"root/orders(o)"`)
}

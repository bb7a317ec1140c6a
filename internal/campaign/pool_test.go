package campaign

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memlab/internal/bench"
	"memlab/internal/classify"
	"memlab/internal/features"
	"memlab/internal/sweep"
)

func TestClassifyBatchAlignsResults(t *testing.T) {
	sweeps := []sweep.RawSweep{
		modelTrace(t, bench.NewMemristor()),
		modelTrace(t, bench.NewResistor(1e4)),
		modelTrace(t, bench.NewCapacitor()),
		modelTrace(t, bench.NewMemristor()),
	}
	ex := features.NewExtractor(features.DefaultConfig())

	results, err := ClassifyBatch(context.Background(), ex, classify.DefaultWeights(), sweeps, 2)
	require.NoError(t, err)
	require.Len(t, results, 4)

	want := []classify.Label{
		classify.LabelMemristive,
		classify.LabelOhmic,
		classify.LabelCapacitive,
		classify.LabelMemristive,
	}
	for idx, label := range want {
		assert.Equal(t, label, results[idx].Label, "index %d", idx)
	}
}

func TestClassifyBatchDegradesBadSweep(t *testing.T) {
	sweeps := []sweep.RawSweep{
		modelTrace(t, bench.NewMemristor()),
		{ID: "short", Voltage: []float64{0, 1}, Current: []float64{0, 1e-5}},
		modelTrace(t, bench.NewResistor(1e4)),
	}
	ex := features.NewExtractor(features.DefaultConfig())

	results, err := ClassifyBatch(context.Background(), ex, classify.DefaultWeights(), sweeps, 0)
	require.NoError(t, err, "one bad sweep must not fail the batch")
	require.Len(t, results, 3)
	assert.Equal(t, classify.LabelMemristive, results[0].Label)
	assert.Equal(t, classify.LabelUncertain, results[1].Label)
	assert.Equal(t, classify.LabelOhmic, results[2].Label)
}

func TestClassifyBatchEmpty(t *testing.T) {
	ex := features.NewExtractor(features.DefaultConfig())
	results, err := ClassifyBatch(context.Background(), ex, classify.DefaultWeights(), nil, 4)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestClassifyBatchHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sweeps := make([]sweep.RawSweep, 8)
	for idx := range sweeps {
		sweeps[idx] = modelTrace(t, bench.NewResistor(1e4))
	}
	ex := features.NewExtractor(features.DefaultConfig())

	_, err := ClassifyBatch(ctx, ex, classify.DefaultWeights(), sweeps, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

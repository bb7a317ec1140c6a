package campaign

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"memlab/internal/classify"
	"memlab/internal/features"
	"memlab/internal/logging"
	"memlab/internal/sweep"
)

// ClassifyBatch scores many sweeps concurrently. Classification is pure,
// so the fan-out is safe; each failed sweep degrades to an uncertain
// result in place rather than failing the batch. Results are positionally
// aligned with the input. limit <= 0 uses one worker per CPU.
func ClassifyBatch(ctx context.Context, ex *features.Extractor, w classify.Weights, sweeps []sweep.RawSweep, limit int) ([]classify.Result, error) {
	if limit <= 0 {
		limit = runtime.NumCPU()
	}
	results := make([]classify.Result, len(sweeps))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(limit)
	for idx := range sweeps {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			s := sweeps[idx]
			rec, err := ex.Extract(s)
			if err != nil {
				logging.Get(logging.CategoryExtract).Warn("sweep %s: extraction failed: %v", s.ID, err)
				results[idx] = classify.Uncertain()
				return nil
			}
			res, err := classify.Classify(rec, w)
			if err != nil {
				logging.Get(logging.CategoryClassify).Warn("sweep %s: classification failed: %v", s.ID, err)
				results[idx] = classify.Uncertain()
				return nil
			}
			results[idx] = res
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

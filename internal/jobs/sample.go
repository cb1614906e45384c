package jobs

import (
	"context"

	"github.com/mkaufman2023/enteliweb/internal/gateway"
)

// SampleResult is the outcome of one object in a sample run.
type SampleResult struct {
	Object gateway.ObjectReference
	Values map[string]string
	Err    error
}

// RunSample reads the configured properties of every configured object in
// one batch request per object and hands the values to the Sampler.
func (r *Runner) RunSample(ctx context.Context) []SampleResult {
	results := make([]SampleResult, 0, len(r.targets))
	for _, target := range r.targets {
		if ctx.Err() != nil {
			break
		}

		var values map[string]string
		err := r.keeper.do(ctx, func(sess *gateway.Session) error {
			var err error
			values, err = r.client.ReadMany(ctx, sess, target.ref, target.properties)
			return err
		})
		results = append(results, SampleResult{Object: target.ref, Values: values, Err: err})

		if err != nil {
			r.logger.Error("property sample failed", "object", target.ref.String(), "error", err)
			continue
		}
		if r.sampler != nil {
			if failed := r.sampler.PublishSample(target.ref, values, r.now()); failed > 0 {
				r.logger.Warn("some sampled values were not published", "object", target.ref.String(), "failed", failed)
			}
		}
	}
	return results
}

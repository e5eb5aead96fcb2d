package optimizer

import (
	"context"
	"sort"

	"github.com/rs/zerolog/log"
)

// BatchResult summarizes one run over every active creator
type BatchResult struct {
	Calculated  int               `json:"calculated"`
	Failed      int               `json:"failed"`
	WeeklyTotal int               `json:"weekly_total"` // sum over calculated creators
	Errors      map[string]string `json:"errors,omitempty"`
}

// CalculateActive optimizes every active creator in id order. A failing
// creator is counted and logged, it does not stop the batch; only listing
// the creators or a cancelled context ends it early.
func (s *Service) CalculateActive(ctx context.Context, opts Options) (BatchResult, error) {
	res := BatchResult{Errors: make(map[string]string)}

	active, err := s.deps.Creators.ListActive(ctx)
	if err != nil {
		return res, err
	}
	sort.Slice(active, func(i, j int) bool { return active[i].CreatorID < active[j].CreatorID })

	for _, c := range active {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		out, err := s.CalculateOptimizedVolume(ctx, c.CreatorID, opts)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, ctxErr
			}
			res.Failed++
			res.Errors[c.CreatorID] = err.Error()
			continue
		}
		res.Calculated++
		res.WeeklyTotal += out.WeeklyTotal
	}

	log.Info().
		Int("creators", len(active)).
		Int("calculated", res.Calculated).
		Int("failed", res.Failed).
		Bool("saved", opts.SavePrediction).
		Msg("Batch volume optimization completed")
	return res, nil
}

package worker

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Outcome is the result of one Gather task, kept at the task's input index.
type Outcome[T any] struct {
	Value T
	Err   error
}

// Gather runs fn for every input with at most limit calls in flight and waits
// for all of them. A failing task does not cancel its siblings; each outcome
// carries its own error. The returned slice is in input order, not completion
// order.
func Gather[In, Out any](ctx context.Context, inputs []In, limit int, fn func(ctx context.Context, in In) (Out, error)) []Outcome[Out] {
	out := make([]Outcome[Out], len(inputs))
	if len(inputs) == 0 {
		return out
	}
	if limit < 1 {
		limit = 1
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for i, in := range inputs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				out[i].Err = err
				return nil
			}
			v, err := fn(ctx, in)
			out[i] = Outcome[Out]{Value: v, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

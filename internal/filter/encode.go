package filter

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Encoded is one chunk after the pipeline ran.
type Encoded struct {
	Data []byte
	Mask uint32
}

// EncodeAll runs every chunk through the pipeline using at most workers
// goroutines (GOMAXPROCS when workers <= 0). Results keep input order.
// An empty pipeline returns the chunks unchanged.
func (p *Pipeline) EncodeAll(ctx context.Context, chunks [][]byte, workers int) ([]Encoded, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]Encoded, len(chunks))
	if p.Empty() {
		for i, c := range chunks {
			out[i] = Encoded{Data: c}
		}
		return out, nil
	}

	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range chunks {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, mask, err := p.Apply(chunks[i])
			if err != nil {
				return fmt.Errorf("chunk %d: %w", i, err)
			}
			out[i] = Encoded{Data: data, Mask: mask}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

package usecase

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// BatchScheduler bounds outstanding classifier calls. Each group runs
// concurrently and fully drains before the next one starts; Delay is waited
// between groups. Size 1 with a Delay is the serial inter-item policy.
type BatchScheduler struct {
	Size  int
	Delay time.Duration
}

// Plan partitions items into consecutive groups of at most Size.
func Plan[T any](b BatchScheduler, items []T) [][]T {
	size := b.Size
	if size < 1 {
		size = 1
	}
	groups := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		groups = append(groups, items[start:end])
	}
	return groups
}

// Dispatch runs work for every item group by group and returns the group
// sizes in dispatch order. It stops early only if ctx is cancelled between
// groups; the groups already started always complete.
func Dispatch[T any](ctx context.Context, b BatchScheduler, items []T, work func(context.Context, T)) ([]int, error) {
	groups := Plan(b, items)
	sizes := make([]int, 0, len(groups))

	for i, group := range groups {
		if i > 0 && b.Delay > 0 {
			timer := time.NewTimer(b.Delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return sizes, ctx.Err()
			case <-timer.C:
			}
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, item := range group {
			g.Go(func() error {
				work(gctx, item)
				return nil
			})
		}
		_ = g.Wait()
		sizes = append(sizes, len(group))
	}
	return sizes, nil
}

package site

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// PageProcessor is a function applied to one page file.
type PageProcessor func(ctx context.Context, path string) error

// Process runs processor over every page with a pool of workers. Errors
// are collected rather than aborting the run: one broken page should not
// stop the rest of the site.
func Process(ctx context.Context, pages []string, workers int, processor PageProcessor) error {
	if workers <= 0 {
		workers = 1
	}

	jobs := make(chan string, len(pages))
	results := make(chan error, len(pages))

	g, ctx := errgroup.WithContext(ctx)

	for w := 0; w < workers; w++ {
		g.Go(func() error {
			return worker(ctx, jobs, results, processor)
		})
	}

	go func() {
		defer close(jobs)
		for _, page := range pages {
			select {
			case jobs <- page:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		g.Wait()
		close(results)
	}()

	var failed int
	for err := range results {
		if err != nil {
			failed++
		}
	}

	if err := g.Wait(); err != nil {
		return err
	}

	if failed > 0 {
		return fmt.Errorf("encountered %d errors during processing", failed)
	}

	return nil
}

func worker(ctx context.Context, jobs <-chan string, results chan<- error, processor PageProcessor) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case path, ok := <-jobs:
			if !ok {
				return nil
			}
			results <- processor(ctx, path)
		}
	}
}

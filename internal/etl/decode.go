package etl

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/sparkifydata/sparkify-etl/internal/source"
)

// DecodeStats counts what happened to the raw input during decoding.
type DecodeStats struct {
	Records          int64 // records decoded and kept
	MalformedLines   int64 // lines that were not JSON objects
	RejectedRecords  int64 // records dropped by strict mode
	CoercionFailures int64 // fields nulled by permissive coercion
}

type indexedLine struct {
	idx  int64
	line source.Line
}

type indexedRecord[T any] struct {
	idx int64
	rec T
}

// decodeLines streams every line from src through a pool of decode workers.
//
// Decoding is embarrassingly parallel; the results are re-sorted by input
// position afterwards so that downstream first-seen dedup is deterministic
// across runs regardless of worker scheduling.
func decodeLines[T any](
	ctx context.Context,
	src source.LineSource,
	workers int,
	strict bool,
	log *slog.Logger,
	decode func([]byte) (*T, int, error),
) ([]T, DecodeStats, error) {
	if workers < 1 {
		workers = 1
	}

	lineCh, srcErrCh := src.Stream(ctx)

	workCh := make(chan indexedLine, workers*16)
	resCh := make(chan indexedRecord[T], workers*16)

	var stats DecodeStats

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for w := range workCh {
				rec, failures, err := decode(w.line.Data)
				if err != nil {
					atomic.AddInt64(&stats.MalformedLines, 1)
					log.Debug("skipping malformed line",
						"path", w.line.Path, "line", w.line.Number, "error", err)
					continue
				}
				if failures > 0 {
					atomic.AddInt64(&stats.CoercionFailures, int64(failures))
					if strict {
						atomic.AddInt64(&stats.RejectedRecords, 1)
						log.Debug("rejecting record (strict mode)",
							"path", w.line.Path, "line", w.line.Number, "failed_fields", failures)
						continue
					}
				}
				select {
				case resCh <- indexedRecord[T]{idx: w.idx, rec: *rec}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	// Collector accumulates decoded records while the feeder runs.
	var results []indexedRecord[T]
	collectDone := make(chan struct{})
	go func() {
		defer close(collectDone)
		for r := range resCh {
			results = append(results, r)
		}
	}()

	// Feed lines to the workers with a global input position.
	var feedErr error
	var idx int64
feed:
	for line := range lineCh {
		select {
		case workCh <- indexedLine{idx: idx, line: line}:
			idx++
		case <-ctx.Done():
			feedErr = ctx.Err()
			break feed
		}
	}
	close(workCh)
	wg.Wait()
	close(resCh)
	<-collectDone

	if feedErr != nil {
		return nil, stats, feedErr
	}
	if err := <-srcErrCh; err != nil {
		return nil, stats, fmt.Errorf("source error: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, stats, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].idx < results[j].idx })

	records := make([]T, len(results))
	for i, r := range results {
		records[i] = r.rec
	}
	stats.Records = int64(len(records))
	return records, stats, nil
}

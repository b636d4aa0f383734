package app

import (
	"context"
	"fmt"

	"dittoload/internal/fleet"
	"dittoload/internal/sender"
	"dittoload/internal/task/repeater"
)

// BatchError reports a tick whose pushes partly failed remotely. The tick
// still counts as run; the repeater logs it and keeps going.
type BatchError struct {
	Class  string
	Failed int
	Total  int
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("%s: %d of %d pushes failed", e.Class, e.Failed, e.Total)
}

// batchWorker draws count entities (with replacement) from pool, mutates
// each one and pushes it. A configuration error aborts the batch and is
// returned as is so the repeater can treat it as fatal.
func batchWorker(class string, rng fleet.Rand, pool []fleet.Entity, count int, snd *sender.Sender) repeater.Worker {
	return func(ctx context.Context) error {
		batch := fleet.Sample(rng, pool, count)
		failed := 0
		for _, e := range batch {
			if ctx.Err() != nil {
				return nil
			}
			id, th := fleet.Mutate(rng, e)
			res, err := snd.Send(ctx, id, &th)
			if err != nil {
				return fmt.Errorf("%s: push %s: %w", class, id, err)
			}
			if res.Outcome == sender.OutcomeHTTPError || res.Outcome == sender.OutcomeTransportError {
				failed++
			}
		}
		if failed > 0 {
			return &BatchError{Class: class, Failed: failed, Total: len(batch)}
		}
		return nil
	}
}

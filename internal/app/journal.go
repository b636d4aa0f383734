package app

import (
	"context"
	"time"

	"dittoload/internal/sender"
	"dittoload/internal/storage"
	logx "dittoload/pkg/logx"
)

// journal appends every push result to the store.
type journal struct {
	store storage.Store
	runID string
	log   logx.Logger
}

const journalWriteTimeout = 500 * time.Millisecond

func (j *journal) ObservePush(r sender.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), journalWriteTimeout)
	defer cancel()
	err := j.store.AppendPush(ctx, storage.PushRecord{
		RunID:      j.runID,
		At:         r.At,
		ThingID:    r.ThingID,
		Outcome:    string(r.Outcome),
		Status:     r.StatusCode,
		DurationMS: r.Duration.Milliseconds(),
		Error:      r.Error,
	})
	if err != nil {
		j.log.Debug("journal append failed", logx.String("thing", r.ThingID), logx.Err(err))
	}
}

package persistence

import (
	"context"
	"log/slog"
	"time"

	"github.com/skobkin/rilcore/internal/bus"
	"github.com/skobkin/rilcore/internal/events"
)

// StartJournalProjection records radio state changes, token completions and
// channel status changes published on the bus.
func StartJournalProjection(ctx context.Context, b bus.MessageBus, queue WriteQueue, repo *StateRepo) {
	stateSub := b.Subscribe(events.TopicRadioState)
	completionSub := b.Subscribe(events.TopicCompletion)
	channelSub := b.Subscribe(events.TopicChannel)

	go func() {
		defer b.Unsubscribe(stateSub, events.TopicRadioState)
		defer b.Unsubscribe(completionSub, events.TopicCompletion)
		defer b.Unsubscribe(channelSub, events.TopicChannel)
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-stateSub:
				if !ok {
					return
				}
				state, ok := raw.(events.RadioState)
				if !ok {
					continue
				}
				rec := StateRecord{Radio: state.Radio, Power: state.Power, At: orNow(state.At)}
				queue.Enqueue("insert_radio_state", func(writeCtx context.Context) error {
					return repo.InsertRadioState(writeCtx, rec)
				})
			case raw, ok := <-completionSub:
				if !ok {
					return
				}
				c, ok := raw.(events.Completion)
				if !ok {
					continue
				}
				rec := CompletionRecord{Token: c.Token, Result: c.Result, At: orNow(c.At)}
				queue.Enqueue("insert_completion", func(writeCtx context.Context) error {
					return repo.InsertCompletion(writeCtx, rec)
				})
			case raw, ok := <-channelSub:
				if !ok {
					return
				}
				status, ok := raw.(events.ChannelStatus)
				if !ok {
					continue
				}
				rec := ChannelRecord{Channel: status.Channel, State: string(status.State), Err: status.Err, At: orNow(status.Timestamp)}
				queue.Enqueue("insert_channel_event", func(writeCtx context.Context) error {
					return repo.InsertChannelEvent(writeCtx, rec)
				})
			}
		}
	}()
}

// LogLastState reports the journaled radio state left by the previous run.
func LogLastState(ctx context.Context, logger *slog.Logger, repo *StateRepo) {
	last, ok, err := repo.LastRadioState(ctx)
	switch {
	case err != nil:
		logger.Warn("read last radio state", "error", err)
	case !ok:
		logger.Info("no previous radio state recorded")
	default:
		logger.Info("previous radio state", "radio", last.Radio, "power", last.Power, "at", last.At.Format(time.RFC3339))
	}
}

func orNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}

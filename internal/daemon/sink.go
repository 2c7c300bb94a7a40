package daemon

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/travels/internal/audit"
	"git.home.luguber.info/inful/travels/internal/events"
	"git.home.luguber.info/inful/travels/internal/logfields"
)

// mutationFanout forwards each applied mutation to the audit store and the
// event publisher. Both legs are best-effort: the mutation has already been
// applied, so failures are logged and swallowed.
type mutationFanout struct {
	store     audit.Store
	publisher *events.Publisher
}

func (f *mutationFanout) RecordMutation(ctx context.Context, entity string, entityID uint32, action string, body []byte) {
	if f.store != nil {
		err := f.store.Record(ctx, audit.Event{
			Entity:   entity,
			EntityID: entityID,
			Action:   action,
			Payload:  body,
		})
		if err != nil {
			slog.Error("Audit record failed",
				logfields.Entity(entity),
				logfields.EntityID(entityID),
				logfields.Action(action),
				logfields.Error(err))
		}
	}

	if f.publisher != nil {
		if err := f.publisher.Publish(entity, entityID, action, body); err != nil {
			slog.Error("Event publish failed",
				logfields.Entity(entity),
				logfields.EntityID(entityID),
				logfields.Action(action),
				logfields.Error(err))
		}
	}
}

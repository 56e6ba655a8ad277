// Package broadcast defines the port for pushing the live decision event
// feed to connected clients.
package broadcast

import (
	"context"

	"github.com/nerv-labs/magi/internal/domain/event"
)

// Broadcaster sends stream events to every connected client. Slow or gone
// clients must not block the caller.
type Broadcaster interface {
	BroadcastEvent(ctx context.Context, ev event.Event)
}

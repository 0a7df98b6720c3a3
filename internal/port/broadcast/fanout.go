package broadcast

import "context"

// Fanout delivers every event to each broadcaster in order.
type Fanout []Broadcaster

// BroadcastEvent forwards the event to all broadcasters.
func (f Fanout) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	for _, b := range f {
		b.BroadcastEvent(ctx, eventType, payload)
	}
}

package rooms

import "context"

// WaitForEvents blocks until the room has events with id greater than
// afterID, then returns them. It wakes on every broadcast to the room
// and returns ctx.Err() when the context ends first.
func (r *Registry) WaitForEvents(ctx context.Context, roomID string, afterID uint64) ([]Event, error) {
	for {
		ch := r.NotifyChan(roomID)
		evs, err := r.EventsSince(roomID, afterID, 0)
		if err != nil {
			return nil, err
		}
		if len(evs) > 0 {
			return evs, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ch:
		}
	}
}

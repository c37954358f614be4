package coordinator

import (
	"context"

	"github.com/nerrad567/tankutility-bridge/internal/tankutility"
)

// Listener receives every record a coordinator publishes.
// Implementations must not modify rec.
type Listener interface {
	OnRecord(ctx context.Context, deviceID, name string, rec tankutility.Record) error
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(ctx context.Context, deviceID, name string, rec tankutility.Record) error

// OnRecord calls f.
func (f ListenerFunc) OnRecord(ctx context.Context, deviceID, name string, rec tankutility.Record) error {
	return f(ctx, deviceID, name, rec)
}

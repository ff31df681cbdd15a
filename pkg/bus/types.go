package bus

import (
	"context"

	"drivel/pkg/stanza"
)

// Route delivers an outbound reply to the adapter that owns its channel.
type Route func(ctx context.Context, reply stanza.Reply) error

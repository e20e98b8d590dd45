package maintenance

import (
	"context"

	economydomain "github.com/redgulch/frontier/internal/services/economy/domain"
)

// marketStore extends the economy engine store with the operator-facing
// alert acknowledgement and a Close method for resource cleanup.
type marketStore interface {
	economydomain.Store
	AcknowledgeAlert(ctx context.Context, alertID string) (bool, error)
	Close() error
}

package inventory

import (
	"context"
	"time"
)

// StockChangedEvent is published after a committed unit of work moved stock.
type StockChangedEvent struct {
	RefModule string
	RefCode   string
	Keys      []Key
	At        time.Time
}

// ChangeListener reacts to committed stock changes, e.g. by invalidating
// cached dashboards. Listener errors never undo the committed change.
type ChangeListener interface {
	StockChanged(ctx context.Context, evt StockChangedEvent) error
}

// KeysOf lists the distinct keys touched by moves in (warehouse, product) order.
func KeysOf(moves []Movement) []Key {
	seen := make(map[Key]struct{}, len(moves))
	keys := make([]Key, 0, len(moves))
	for _, m := range moves {
		k := m.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	sortKeys(keys)
	return keys
}

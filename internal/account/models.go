package account

import "time"

// Account is the shared per-user reward state, visible to every device
// and sampler of the same user. LastPointAt is the cooldown anchor all
// of them must agree on.
type Account struct {
	UserID      string    `json:"user_id"`
	Points      int64     `json:"points"`
	LastPointAt time.Time `json:"last_point_at"`
	CreatedAt   time.Time `json:"created_at"`
}

type HistoryEntry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Amount    int64     `json:"amount"`
	Reason    string    `json:"reason"`
	AwardedAt time.Time `json:"awarded_at"`
}

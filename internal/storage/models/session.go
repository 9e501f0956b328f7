package models

import "time"

// Session is the persisted session row: which node is marked in use and
// whether the trojan-go process should outlive the controlling program.
type Session struct {
	ID        int64     `json:"id"` // Always 1 (singleton)
	UsingNode string    `json:"using_node,omitempty"`
	Daemon    bool      `json:"daemon"`
	UpdatedAt time.Time `json:"updated_at"`
}

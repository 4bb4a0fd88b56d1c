package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Split represents a shared expense divided among members.
type Split struct {
	// ID is the store-assigned key for the split (UUID format when created via the API).
	ID string `json:"id"`

	// Title is the human-readable name for the split.
	Title string `json:"title"`

	// Currency is the ISO 4217 code used for all amounts (e.g., "INR").
	Currency string `json:"currency"`

	// Total is the full bill amount, including tax.
	Total decimal.Decimal `json:"total"`

	// Members is the ordered list of participants and their payment state.
	Members []Member `json:"members"`

	// Version is bumped on every member update and used for compare-and-update.
	Version int64 `json:"version"`

	// CreatedAt is the Unix timestamp when the split was created.
	CreatedAt int64 `json:"createdAt"`

	// UpdatedAt is the Unix timestamp of the last member update.
	UpdatedAt int64 `json:"updatedAt"`
}

// Member represents one participant's share within a split.
type Member struct {
	// ID identifies the member within the split. Matching is exact.
	ID string `json:"id"`

	// Name is the display name of the member.
	Name string `json:"name,omitempty"`

	// Amount is what this member owes for the split.
	Amount decimal.Decimal `json:"amount"`

	Paid   bool       `json:"paid"`
	PaidAt *time.Time `json:"paidAt,omitempty"`

	// PaidBy names the processor that settled the share.
	PaidBy string `json:"paidBy,omitempty"`

	// PaymentInfo is the processor's payment record, stored verbatim.
	PaymentInfo json.RawMessage `json:"paymentInfo,omitempty"`
}

// MemberIndex returns the position of the member with the given ID, or -1.
func (s *Split) MemberIndex(memberID string) int {
	for i := range s.Members {
		if s.Members[i].ID == memberID {
			return i
		}
	}
	return -1
}

// CloneMembers returns a copy of the member list that can be modified
// without touching the split it came from.
func (s *Split) CloneMembers() []Member {
	members := make([]Member, len(s.Members))
	copy(members, s.Members)
	return members
}

// PaidCount returns the number of members that have paid.
func (s *Split) PaidCount() int {
	n := 0
	for _, m := range s.Members {
		if m.Paid {
			n++
		}
	}
	return n
}

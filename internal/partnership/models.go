// Package partnership maintains the directed request/accept/reject
// relationships that gate custody transfers between organizations.
package partnership

import (
	"time"

	id "custodia/pkg/domain"
)

// Status is the lifecycle state of a partnership.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// Partnership is an ordered (sender, receiver) pair. Created pending by a
// request; mutated exactly once by the receiver's response; immutable after.
//
// Invariant: at most one pending-or-accepted partnership exists per
// unordered {sender, receiver} pair. A rejected one may be re-requested.
type Partnership struct {
	ID          id.PartnershipID `json:"id"`
	SenderID    id.OrgID         `json:"senderId"`
	ReceiverID  id.OrgID         `json:"receiverId"`
	Status      Status           `json:"status"`
	RequestedAt time.Time        `json:"requestedAt"`
	RespondedAt *time.Time       `json:"respondedAt,omitempty"`
}

// Active reports whether this partnership blocks a new request for its pair.
func (p *Partnership) Active() bool {
	return p.Status == StatusPending || p.Status == StatusAccepted
}

// Covers reports whether the partnership involves both organizations,
// regardless of direction.
func (p *Partnership) Covers(a, b id.OrgID) bool {
	return (p.SenderID == a && p.ReceiverID == b) || (p.SenderID == b && p.ReceiverID == a)
}

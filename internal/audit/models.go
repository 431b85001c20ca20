package audit

import "time"

// Kind names a recorded action.
type Kind string

const (
	KindProductCreated       Kind = "product_created"
	KindBatchMinted          Kind = "batch_minted"
	KindCustodyTransferred   Kind = "custody_transferred"
	KindPartnershipRequested Kind = "partnership_requested"
	KindPartnershipAccepted  Kind = "partnership_accepted"
	KindPartnershipRejected  Kind = "partnership_rejected"
	KindProofGenerated       Kind = "proof_generated"
	KindCustomerVerified     Kind = "customer_verified"
)

// Event is emitted from domain logic to capture custody-relevant actions.
// Keep it transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp     time.Time `json:"timestamp"`
	Kind          Kind      `json:"kind"`
	ActorID       string    `json:"actorId,omitempty"`
	ProductID     string    `json:"productId,omitempty"`
	BatchID       string    `json:"batchId,omitempty"`
	PartnershipID string    `json:"partnershipId,omitempty"`
	AnchorID      string    `json:"anchorId,omitempty"`
	Detail        string    `json:"detail,omitempty"`
}

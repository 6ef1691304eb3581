package nats

import (
	"fmt"
	"time"
)

// Activity kinds.
const (
	KindAirdrop  = "airdrop"
	KindTransfer = "transfer"
)

// Activity outcomes.
const (
	OutcomeConfirmed = "confirmed"
	OutcomeFailed    = "failed"
)

// ActivityEvent is published when an airdrop or transfer started from the
// dashboard completes. It goes to the subject "activity.{wallet_address}".
type ActivityEvent struct {
	Kind    string `json:"kind"`
	Outcome string `json:"outcome"`

	// Signature is empty when the request failed before submission.
	Signature string `json:"signature,omitempty"`

	WalletAddress string  `json:"wallet_address"`
	Counterparty  *string `json:"counterparty,omitempty"` // transfer recipient

	Lamports uint64 `json:"lamports"`
	Amount   string `json:"amount"` // SOL, as entered
	Status   string `json:"status"` // message shown to the user

	PublishedAt time.Time `json:"published_at"`
}

// Subject returns the JetStream subject for events about address.
func Subject(address string) string {
	return fmt.Sprintf("%s.%s", SubjectPrefix, address)
}

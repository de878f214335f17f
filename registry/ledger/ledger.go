// Package ledger defines the contract between the registry stores and the
// transaction layer that sequences their mutations.
//
// The stores never submit transactions themselves. They build a mutation
// payload, hand it to a Ledger, and treat the returned sequence point as the
// authoritative "now" for timestamps and update-log ordering. Nonce
// management, fees, retries and block inclusion all live behind this
// interface.
package ledger

import (
	"context"
	"fmt"

	"github.com/pilacorp/go-trust-registry/registry/dto"
)

// SequencePoint is the ledger-assigned, strictly increasing position of a
// committed mutation. It orders the accumulator update log and doubles as
// the creation and modification timestamp of accumulator objects.
type SequencePoint uint64

// Payload is a registry mutation prepared for submission.
type Payload struct {
	// Method names the mutation, e.g. "revocation.revoke".
	Method string `json:"method"`
	// Data is the JSON-encoded mutation arguments.
	Data []byte `json:"data"`
}

// Ledger sequences registry mutations.
//
// Submit is all-or-nothing: a nil error means the payload was committed at
// the returned sequence point; any error means nothing was committed and the
// caller must not apply the state transition.
type Ledger interface {
	Submit(ctx context.Context, p Payload, signer dto.Controller) (SequencePoint, error)
}

// TxError wraps a failure of the transaction layer. It deliberately carries
// no more structure than the underlying cause; distinguishing retryable
// delivery failures from permanent ones is the transaction layer's job.
type TxError struct {
	Err error
}

func (e *TxError) Error() string {
	return fmt.Sprintf("transaction layer: %v", e.Err)
}

func (e *TxError) Unwrap() error {
	return e.Err
}

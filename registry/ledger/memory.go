package ledger

import (
	"context"
	"sync"

	"github.com/pilacorp/go-trust-registry/registry/dto"
)

// Entry is a payload committed to a MemoryLedger.
type Entry struct {
	Seq    SequencePoint
	Method string
	Signer dto.Controller
	Data   []byte
}

// MemoryLedger is an in-process Ledger that assigns strictly increasing
// sequence points and retains every committed payload. It stands in for the
// real transaction layer in tests and gives the stores the single-writer
// sequencing they are written against.
type MemoryLedger struct {
	mu      sync.Mutex
	seq     SequencePoint
	entries []Entry
	failErr error
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{}
}

// Submit commits the payload at the next sequence point.
func (l *MemoryLedger) Submit(ctx context.Context, p Payload, signer dto.Controller) (SequencePoint, error) {
	if err := ctx.Err(); err != nil {
		return 0, &TxError{Err: err}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.failErr != nil {
		err := l.failErr
		l.failErr = nil
		return 0, &TxError{Err: err}
	}

	l.seq++
	data := make([]byte, len(p.Data))
	copy(data, p.Data)
	l.entries = append(l.entries, Entry{
		Seq:    l.seq,
		Method: p.Method,
		Signer: signer,
		Data:   data,
	})
	return l.seq, nil
}

// Head returns the sequence point of the latest committed payload, or 0 if
// nothing has been committed.
func (l *MemoryLedger) Head() SequencePoint {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq
}

// Entries returns a copy of all committed payloads in commit order.
func (l *MemoryLedger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// FailNext makes the next Submit return a TxError wrapping err without
// committing anything.
func (l *MemoryLedger) FailNext(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failErr = err
}

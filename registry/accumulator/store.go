// Package accumulator implements the versioned cryptographic accumulator
// store and its append-only update log.
//
// The store never interprets accumulated values, deltas or witness update
// info; they are opaque bytes produced by an external accumulator library.
// Its job is the state machine (absent -> active -> absent), the shape rules
// for updates, and a replayable log ordered by ledger sequence.
package accumulator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/pilacorp/go-trust-registry/registry/dto"
	"github.com/pilacorp/go-trust-registry/registry/ledger"
	"github.com/pilacorp/go-trust-registry/registry/rerr"
)

// Type distinguishes the supported accumulator constructions.
type Type uint8

const (
	// Positive accumulators support membership proofs only.
	Positive Type = iota + 1
	// Universal accumulators support membership and non-membership proofs
	// and carry a maximum size.
	Universal
)

func (t Type) String() string {
	switch t {
	case Positive:
		return "positive"
	case Universal:
		return "universal"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Accumulator is the stored accumulator object. Created and LastModified are
// ledger sequence points, not wall-clock times; Created == LastModified
// exactly until the first update.
type Accumulator struct {
	ID           dto.AccumulatorID
	Type         Type
	Accumulated  []byte
	KeyRef       dto.StorageRef
	MaxSize      *uint64 // universal accumulators only
	Created      ledger.SequencePoint
	LastModified ledger.SequencePoint
}

// Delta is the incremental part of an update. WitnessUpdateInfo is the
// externally computed data that lets holders update their witnesses without
// recomputing from the full member set; it is mandatory whenever additions
// or removals are present.
type Delta struct {
	Additions         [][]byte
	Removals          [][]byte
	WitnessUpdateInfo []byte
}

// Update is one entry of the append-only update log.
type Update struct {
	Seq               ledger.SequencePoint
	NewAccumulated    []byte
	Additions         [][]byte
	Removals          [][]byte
	WitnessUpdateInfo []byte
}

// Store holds accumulators and their update logs. Removing an accumulator
// deletes the object but keeps its log queryable.
type Store struct {
	lgr ledger.Ledger
	log *logrus.Logger

	mu      sync.RWMutex
	accums  map[dto.AccumulatorID]*Accumulator
	updates map[dto.AccumulatorID][]Update
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for mutation logging.
func WithLogger(l *logrus.Logger) Option {
	return func(s *Store) {
		s.log = l
	}
}

// NewStore creates an accumulator store backed by the given ledger.
func NewStore(lgr ledger.Ledger, opts ...Option) *Store {
	s := &Store{
		lgr:     lgr,
		log:     logrus.StandardLogger(),
		accums:  make(map[dto.AccumulatorID]*Accumulator),
		updates: make(map[dto.AccumulatorID][]Update),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create adds a new accumulator. maxSize must be set for universal
// accumulators and absent for positive ones. Creating over an active
// accumulator fails with ErrAlreadyExists.
func (s *Store) Create(ctx context.Context, id dto.AccumulatorID, typ Type, accumulated []byte, keyRef dto.StorageRef, maxSize *uint64) error {
	if typ != Positive && typ != Universal {
		return fmt.Errorf("accumulator %s: unknown type %d", id, typ)
	}
	if len(accumulated) == 0 {
		return fmt.Errorf("accumulator %s: accumulated value is empty", id)
	}
	if typ == Universal && maxSize == nil {
		return fmt.Errorf("accumulator %s: universal accumulator requires max size", id)
	}
	if typ == Positive && maxSize != nil {
		return fmt.Errorf("accumulator %s: max size applies to universal accumulators only", id)
	}

	s.mu.RLock()
	_, exists := s.accums[id]
	s.mu.RUnlock()
	if exists {
		return fmt.Errorf("accumulator %s: %w", id, rerr.ErrAlreadyExists)
	}

	seq, err := s.submit(ctx, "accumulator.create", createArgs{ID: id.String(), Type: typ.String(), KeyRef: keyRef}, keyRef.Owner)
	if err != nil {
		return err
	}

	var size *uint64
	if maxSize != nil {
		v := *maxSize
		size = &v
	}

	s.mu.Lock()
	s.accums[id] = &Accumulator{
		ID:           id,
		Type:         typ,
		Accumulated:  cloneBytes(accumulated),
		KeyRef:       keyRef,
		MaxSize:      size,
		Created:      seq,
		LastModified: seq,
	}
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{"accumulator": id.String(), "type": typ.String(), "seq": seq}).Debug("accumulator created")
	return nil
}

// ApplyUpdate transitions the accumulator to newAccumulated and appends one
// log entry.
//
// A nil delta is a full replace. A non-nil delta must carry additions or
// removals together with witness update info; anything else fails with
// ErrInvalidDelta before any state changes.
func (s *Store) ApplyUpdate(ctx context.Context, id dto.AccumulatorID, newAccumulated []byte, delta *Delta) error {
	if len(newAccumulated) == 0 {
		return fmt.Errorf("accumulator %s: new accumulated value is empty", id)
	}
	if err := validateDelta(delta); err != nil {
		return fmt.Errorf("accumulator %s: %w", id, err)
	}

	s.mu.RLock()
	acc, ok := s.accums[id]
	var owner dto.Controller
	if ok {
		owner = acc.KeyRef.Owner
	}
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("accumulator %s: %w", id, rerr.ErrNotFound)
	}

	seq, err := s.submit(ctx, "accumulator.update", updateArgs{ID: id.String()}, owner)
	if err != nil {
		return err
	}

	entry := Update{
		Seq:            seq,
		NewAccumulated: cloneBytes(newAccumulated),
	}
	if delta != nil {
		entry.Additions = cloneByteSlices(delta.Additions)
		entry.Removals = cloneByteSlices(delta.Removals)
		entry.WitnessUpdateInfo = cloneBytes(delta.WitnessUpdateInfo)
	}

	s.mu.Lock()
	acc = s.accums[id]
	acc.Accumulated = cloneBytes(newAccumulated)
	acc.LastModified = seq
	s.updates[id] = append(s.updates[id], entry)
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{"accumulator": id.String(), "seq": seq}).Debug("accumulator updated")
	return nil
}

// Remove deletes the accumulator object. Its update log remains queryable.
func (s *Store) Remove(ctx context.Context, id dto.AccumulatorID) error {
	s.mu.RLock()
	acc, ok := s.accums[id]
	var owner dto.Controller
	if ok {
		owner = acc.KeyRef.Owner
	}
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("accumulator %s: %w", id, rerr.ErrNotFound)
	}

	if _, err := s.submit(ctx, "accumulator.remove", updateArgs{ID: id.String()}, owner); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.accums, id)
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{"accumulator": id.String()}).Debug("accumulator removed")
	return nil
}

// Get returns the accumulator object, or nil if it is absent.
func (s *Store) Get(id dto.AccumulatorID) *Accumulator {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.accums[id]
	if !ok {
		return nil
	}
	cp := *acc
	cp.Accumulated = cloneBytes(acc.Accumulated)
	if acc.MaxSize != nil {
		v := *acc.MaxSize
		cp.MaxSize = &v
	}
	return &cp
}

// UpdatesSince returns the update log entries at or after from, in log
// order. The log survives removal of the accumulator object.
func (s *Store) UpdatesSince(id dto.AccumulatorID, from ledger.SequencePoint) []Update {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Update
	for _, u := range s.updates[id] {
		if u.Seq < from {
			continue
		}
		cp := u
		cp.NewAccumulated = cloneBytes(u.NewAccumulated)
		cp.Additions = cloneByteSlices(u.Additions)
		cp.Removals = cloneByteSlices(u.Removals)
		cp.WitnessUpdateInfo = cloneBytes(u.WitnessUpdateInfo)
		out = append(out, cp)
	}
	return out
}

func validateDelta(d *Delta) error {
	if d == nil {
		return nil
	}
	if len(d.Additions) == 0 && len(d.Removals) == 0 {
		return fmt.Errorf("delta carries neither additions nor removals: %w", rerr.ErrInvalidDelta)
	}
	if len(d.WitnessUpdateInfo) == 0 {
		return fmt.Errorf("delta requires witness update info: %w", rerr.ErrInvalidDelta)
	}
	return nil
}

func (s *Store) submit(ctx context.Context, method string, args interface{}, signer dto.Controller) (ledger.SequencePoint, error) {
	data, err := json.Marshal(args)
	if err != nil {
		return 0, fmt.Errorf("failed to encode %s payload: %w", method, err)
	}
	seq, err := s.lgr.Submit(ctx, ledger.Payload{Method: method, Data: data}, signer)
	if err != nil {
		return 0, fmt.Errorf("failed to submit %s: %w", method, err)
	}
	return seq, nil
}

type createArgs struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"`
	KeyRef dto.StorageRef `json:"keyRef"`
}

type updateArgs struct {
	ID string `json:"id"`
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func cloneByteSlices(in [][]byte) [][]byte {
	if in == nil {
		return nil
	}
	out := make([][]byte, len(in))
	for i, b := range in {
		out[i] = cloneBytes(b)
	}
	return out
}

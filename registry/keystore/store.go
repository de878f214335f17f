// Package keystore implements the versioned, append-only store for
// cryptographic setup parameters and public keys.
//
// Entries are addressed by (owner, counter). Counters start at 1 per owner
// and per kind, increase monotonically, and are never reused: removal
// tombstones the entry instead of freeing its slot.
package keystore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"

	"github.com/pilacorp/go-trust-registry/registry/dto"
	"github.com/pilacorp/go-trust-registry/registry/ledger"
	"github.com/pilacorp/go-trust-registry/registry/rerr"
)

// Params is a versioned setup-parameters entry.
type Params struct {
	Owner   dto.Controller
	Counter uint32
	Bytes   []byte
	Label   string
}

// PublicKey is a versioned public key entry. ParamsRef optionally points at
// the Params entry the key was generated against; the reference is resolved
// lazily, at read time.
type PublicKey struct {
	Owner     dto.Controller
	Counter   uint32
	Bytes     []byte
	ParamsRef *dto.StorageRef
}

type refKey struct {
	owner   dto.Controller
	counter uint32
}

type paramsEntry struct {
	value   Params
	removed bool
}

type keyEntry struct {
	value   PublicKey
	removed bool
}

// Store holds params and public keys. Both kinds keep an independent counter
// sequence per owner.
type Store struct {
	lgr ledger.Ledger
	log *logrus.Logger

	mu         sync.RWMutex
	params     map[refKey]*paramsEntry
	keys       map[refKey]*keyEntry
	paramsLast map[dto.Controller]uint32
	keysLast   map[dto.Controller]uint32
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for mutation logging.
func WithLogger(l *logrus.Logger) Option {
	return func(s *Store) {
		s.log = l
	}
}

// NewStore creates a parameter/key store backed by the given ledger.
func NewStore(lgr ledger.Ledger, opts ...Option) *Store {
	s := &Store{
		lgr:        lgr,
		log:        logrus.StandardLogger(),
		params:     make(map[refKey]*paramsEntry),
		keys:       make(map[refKey]*keyEntry),
		paramsLast: make(map[dto.Controller]uint32),
		keysLast:   make(map[dto.Controller]uint32),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddParams appends a params entry for owner and returns its counter.
// The label is optional.
func (s *Store) AddParams(ctx context.Context, owner dto.Controller, data []byte, label string) (uint32, error) {
	if owner == "" {
		return 0, fmt.Errorf("params owner is required")
	}
	if len(data) == 0 {
		return 0, fmt.Errorf("params bytes are empty")
	}

	if err := s.submit(ctx, "keystore.addParams", entryArgs{Owner: owner, Label: label}, owner); err != nil {
		return 0, err
	}

	s.mu.Lock()
	counter := s.paramsLast[owner] + 1
	s.paramsLast[owner] = counter
	s.params[refKey{owner, counter}] = &paramsEntry{value: Params{
		Owner:   owner,
		Counter: counter,
		Bytes:   cloneBytes(data),
		Label:   label,
	}}
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{"owner": owner, "counter": counter}).Debug("params added")
	return counter, nil
}

// AddPublicKey appends a public key entry for owner and returns its counter.
// paramsRef is optional and is not checked at write time; a dangling
// reference only surfaces when the key is resolved with its params.
func (s *Store) AddPublicKey(ctx context.Context, owner dto.Controller, data []byte, paramsRef *dto.StorageRef) (uint32, error) {
	if owner == "" {
		return 0, fmt.Errorf("public key owner is required")
	}
	if len(data) == 0 {
		return 0, fmt.Errorf("public key bytes are empty")
	}

	if err := s.submit(ctx, "keystore.addPublicKey", entryArgs{Owner: owner, ParamsRef: paramsRef}, owner); err != nil {
		return 0, err
	}

	s.mu.Lock()
	counter := s.keysLast[owner] + 1
	s.keysLast[owner] = counter
	var ref *dto.StorageRef
	if paramsRef != nil {
		cp := *paramsRef
		ref = &cp
	}
	s.keys[refKey{owner, counter}] = &keyEntry{value: PublicKey{
		Owner:     owner,
		Counter:   counter,
		Bytes:     cloneBytes(data),
		ParamsRef: ref,
	}}
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{"owner": owner, "counter": counter}).Debug("public key added")
	return counter, nil
}

// GetParams returns the params entry, or nil if it was never added or has
// been removed. Absence is not an error.
func (s *Store) GetParams(owner dto.Controller, counter uint32) *Params {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.params[refKey{owner, counter}]
	if !ok || e.removed {
		return nil
	}
	cp := e.value
	cp.Bytes = cloneBytes(e.value.Bytes)
	return &cp
}

// GetPublicKey returns the public key entry, or nil if it was never added or
// has been removed. The params reference is not resolved.
func (s *Store) GetPublicKey(owner dto.Controller, counter uint32) *PublicKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.publicKeyLocked(owner, counter)
}

// PublicKeyWithParams returns the public key together with the params entry
// it references. A nil key reads as (nil, nil, nil). A key whose reference
// points at a removed or absent params entry fails with ErrDanglingReference;
// plain key lookups are unaffected.
func (s *Store) PublicKeyWithParams(owner dto.Controller, counter uint32) (*PublicKey, *Params, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := s.publicKeyLocked(owner, counter)
	if key == nil {
		return nil, nil, nil
	}
	if key.ParamsRef == nil {
		return key, nil, nil
	}

	e, ok := s.params[refKey{key.ParamsRef.Owner, key.ParamsRef.Counter}]
	if !ok || e.removed {
		return nil, nil, fmt.Errorf("public key %s#%d references params %s: %w",
			owner, counter, key.ParamsRef, rerr.ErrDanglingReference)
	}
	p := e.value
	p.Bytes = cloneBytes(e.value.Bytes)
	return key, &p, nil
}

// RemoveParams tombstones a params entry. The counter is never reallocated.
// Removing an already-removed entry is a no-op.
func (s *Store) RemoveParams(ctx context.Context, owner dto.Controller, counter uint32) error {
	s.mu.RLock()
	_, ok := s.params[refKey{owner, counter}]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("params %s#%d: %w", owner, counter, rerr.ErrNotFound)
	}

	if err := s.submit(ctx, "keystore.removeParams", entryArgs{Owner: owner, Counter: counter}, owner); err != nil {
		return err
	}

	s.mu.Lock()
	s.params[refKey{owner, counter}].removed = true
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{"owner": owner, "counter": counter}).Debug("params removed")
	return nil
}

// RemovePublicKey tombstones a public key entry. The counter is never
// reallocated. Removing an already-removed entry is a no-op.
func (s *Store) RemovePublicKey(ctx context.Context, owner dto.Controller, counter uint32) error {
	s.mu.RLock()
	_, ok := s.keys[refKey{owner, counter}]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("public key %s#%d: %w", owner, counter, rerr.ErrNotFound)
	}

	if err := s.submit(ctx, "keystore.removePublicKey", entryArgs{Owner: owner, Counter: counter}, owner); err != nil {
		return err
	}

	s.mu.Lock()
	s.keys[refKey{owner, counter}].removed = true
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{"owner": owner, "counter": counter}).Debug("public key removed")
	return nil
}

// AllParamsByOwner returns the live params entries of owner, ordered by
// counter ascending. Tombstoned entries are skipped.
func (s *Store) AllParamsByOwner(owner dto.Controller) []*Params {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Params
	for k, e := range s.params {
		if k.owner != owner || e.removed {
			continue
		}
		cp := e.value
		cp.Bytes = cloneBytes(e.value.Bytes)
		out = append(out, &cp)
	}
	slices.SortFunc(out, func(a, b *Params) int {
		return int(a.Counter) - int(b.Counter)
	})
	return out
}

// AllPublicKeysByOwner returns the live public key entries of owner, ordered
// by counter ascending. Tombstoned entries are skipped.
func (s *Store) AllPublicKeysByOwner(owner dto.Controller) []*PublicKey {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*PublicKey
	for k, e := range s.keys {
		if k.owner != owner || e.removed {
			continue
		}
		cp := e.value
		cp.Bytes = cloneBytes(e.value.Bytes)
		out = append(out, &cp)
	}
	slices.SortFunc(out, func(a, b *PublicKey) int {
		return int(a.Counter) - int(b.Counter)
	})
	return out
}

func (s *Store) publicKeyLocked(owner dto.Controller, counter uint32) *PublicKey {
	e, ok := s.keys[refKey{owner, counter}]
	if !ok || e.removed {
		return nil
	}
	cp := e.value
	cp.Bytes = cloneBytes(e.value.Bytes)
	if e.value.ParamsRef != nil {
		ref := *e.value.ParamsRef
		cp.ParamsRef = &ref
	}
	return &cp
}

func (s *Store) submit(ctx context.Context, method string, args interface{}, signer dto.Controller) error {
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", method, err)
	}
	if _, err := s.lgr.Submit(ctx, ledger.Payload{Method: method, Data: data}, signer); err != nil {
		return fmt.Errorf("failed to submit %s: %w", method, err)
	}
	return nil
}

type entryArgs struct {
	Owner     dto.Controller  `json:"owner"`
	Counter   uint32          `json:"counter,omitempty"`
	Label     string          `json:"label,omitempty"`
	ParamsRef *dto.StorageRef `json:"paramsRef,omitempty"`
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

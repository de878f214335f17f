// Package revocation implements the revocation registry store: registry
// metadata, the policy gate in front of every mutation, and the public
// revocation-status read path.
package revocation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/pilacorp/go-trust-registry/registry/dto"
	"github.com/pilacorp/go-trust-registry/registry/ledger"
	"github.com/pilacorp/go-trust-registry/registry/policy"
	"github.com/pilacorp/go-trust-registry/registry/rerr"
)

// Registry is the metadata of a revocation registry. The policy is fixed at
// creation; AddOnly registries never allow an id to be unrevoked.
type Registry struct {
	ID      dto.RegistryID
	Policy  policy.Policy
	AddOnly bool
}

// Store owns revocation registries and their member id sets.
//
// Mutations are serialized by the ledger; the store takes no decision about
// ordering itself. The internal lock only keeps readers from observing a
// half-applied mutation.
type Store struct {
	lgr ledger.Ledger
	log *logrus.Logger

	mu         sync.RWMutex
	registries map[dto.RegistryID]*Registry
	members    map[dto.RegistryID]map[dto.RevocationID]struct{}
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for mutation logging.
func WithLogger(l *logrus.Logger) Option {
	return func(s *Store) {
		s.log = l
	}
}

// NewStore creates a revocation registry store backed by the given ledger.
func NewStore(lgr ledger.Ledger, opts ...Option) *Store {
	s := &Store{
		lgr:        lgr,
		log:        logrus.StandardLogger(),
		registries: make(map[dto.RegistryID]*Registry),
		members:    make(map[dto.RegistryID]map[dto.RevocationID]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateRegistry creates a new registry governed by pol. The id is chosen by
// the creator; creating over an existing id fails with ErrAlreadyExists even
// on a retried request.
func (s *Store) CreateRegistry(ctx context.Context, id dto.RegistryID, pol policy.Policy, addOnly bool, acting dto.Controller) (*Registry, error) {
	if pol.IsZero() {
		return nil, fmt.Errorf("registry %s: policy is required", id)
	}

	s.mu.RLock()
	_, exists := s.registries[id]
	s.mu.RUnlock()
	if exists {
		return nil, fmt.Errorf("registry %s: %w", id, rerr.ErrAlreadyExists)
	}

	if _, err := s.submit(ctx, "revocation.create", createArgs{ID: id.String(), AddOnly: addOnly, Owners: pol.Owners()}, acting); err != nil {
		return nil, err
	}

	reg := &Registry{ID: id, Policy: pol, AddOnly: addOnly}

	s.mu.Lock()
	s.registries[id] = reg
	s.members[id] = make(map[dto.RevocationID]struct{})
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{"registry": id.String(), "addOnly": addOnly}).Debug("registry created")
	return reg, nil
}

// Revoke marks the given ids as revoked. Revoking an already-revoked id is a
// no-op; the whole call is idempotent.
func (s *Store) Revoke(ctx context.Context, id dto.RegistryID, ids []dto.RevocationID, acting dto.Controller) error {
	reg, err := s.authorized(id, acting)
	if err != nil {
		return err
	}

	if _, err := s.submit(ctx, "revocation.revoke", memberArgs{ID: id.String(), Members: idStrings(ids)}, acting); err != nil {
		return err
	}

	s.mu.Lock()
	set := s.members[reg.ID]
	for _, rid := range ids {
		set[rid] = struct{}{}
	}
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{"registry": id.String(), "count": len(ids)}).Debug("ids revoked")
	return nil
}

// Unrevoke removes the given ids from the revoked set. It fails with
// ErrForbidden on add-only registries regardless of who asks; otherwise the
// removal is idempotent.
func (s *Store) Unrevoke(ctx context.Context, id dto.RegistryID, ids []dto.RevocationID, acting dto.Controller) error {
	s.mu.RLock()
	reg, ok := s.registries[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("registry %s: %w", id, rerr.ErrNotFound)
	}
	if reg.AddOnly {
		return fmt.Errorf("registry %s is add-only: %w", id, rerr.ErrForbidden)
	}
	if err := reg.Policy.Authorize(acting); err != nil {
		return fmt.Errorf("registry %s: %w", id, err)
	}

	if _, err := s.submit(ctx, "revocation.unrevoke", memberArgs{ID: id.String(), Members: idStrings(ids)}, acting); err != nil {
		return err
	}

	s.mu.Lock()
	set := s.members[reg.ID]
	for _, rid := range ids {
		delete(set, rid)
	}
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{"registry": id.String(), "count": len(ids)}).Debug("ids unrevoked")
	return nil
}

// IsRevoked reports whether rid is currently revoked in the registry.
// Revocation status is public; no authorization is required. A removed or
// never-created registry reads as "nothing revoked".
func (s *Store) IsRevoked(id dto.RegistryID, rid dto.RevocationID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set, ok := s.members[id]
	if !ok {
		return false, nil
	}
	_, revoked := set[rid]
	return revoked, nil
}

// GetRegistry returns the registry metadata, or nil if it does not exist.
func (s *Store) GetRegistry(id dto.RegistryID) *Registry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reg, ok := s.registries[id]
	if !ok {
		return nil
	}
	cp := *reg
	return &cp
}

// RemoveRegistry destroys the registry and erases all of its member ids.
func (s *Store) RemoveRegistry(ctx context.Context, id dto.RegistryID, acting dto.Controller) error {
	if _, err := s.authorized(id, acting); err != nil {
		return err
	}

	if _, err := s.submit(ctx, "revocation.remove", createArgs{ID: id.String()}, acting); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.registries, id)
	delete(s.members, id)
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{"registry": id.String()}).Debug("registry removed")
	return nil
}

// authorized looks up the registry and evaluates its policy against acting.
func (s *Store) authorized(id dto.RegistryID, acting dto.Controller) (*Registry, error) {
	s.mu.RLock()
	reg, ok := s.registries[id]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("registry %s: %w", id, rerr.ErrNotFound)
	}
	if err := reg.Policy.Authorize(acting); err != nil {
		return nil, fmt.Errorf("registry %s: %w", id, err)
	}
	return reg, nil
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
	ID      string           `json:"id"`
	AddOnly bool             `json:"addOnly,omitempty"`
	Owners  []dto.Controller `json:"owners,omitempty"`
}

type memberArgs struct {
	ID      string   `json:"id"`
	Members []string `json:"members"`
}

func idStrings(ids []dto.RevocationID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

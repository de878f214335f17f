// Package binding derives a registry-qualified revocation id from a
// credential document.
//
// The credential is first put through JSON-LD expansion so that context
// aliasing and property ordering cannot hide or forge the status field; the
// registry id and revocation id are then extracted from the expanded form,
// never from the raw JSON.
package binding

import (
	"errors"
	"fmt"
	"strings"

	"github.com/piprate/json-gold/ld"
	"golang.org/x/crypto/blake2b"

	"github.com/pilacorp/go-trust-registry/registry/dto"
	"github.com/pilacorp/go-trust-registry/registry/rerr"
)

// DefaultQualifier is the prefix that marks a credentialStatus id as a
// registry-scoped revocation reference.
const DefaultQualifier = "rev-reg:pila:"

// credentialStatusIRI is the expanded form of the credentialStatus property
// in the W3C credentials vocabulary.
const credentialStatusIRI = "https://www.w3.org/2018/credentials#credentialStatus"

// ErrExpansion is returned when a document cannot be expanded, for example
// on an unresolvable context or malformed JSON-LD.
var ErrExpansion = errors.New("JSON-LD expansion failed")

// Binding is the registry membership extracted from a credential.
type Binding struct {
	RegistryID   dto.RegistryID
	RevocationID dto.RevocationID
	CredentialID string
}

// Binder expands credentials and derives their revocation ids.
type Binder struct {
	loader    ld.DocumentLoader
	qualifier string
}

// BinderOpt configures a Binder.
type BinderOpt func(*Binder)

// WithDocumentLoader sets the JSON-LD document loader used for expansion.
func WithDocumentLoader(loader ld.DocumentLoader) BinderOpt {
	return func(b *Binder) {
		b.loader = loader
	}
}

// WithQualifier overrides the qualifier prefix identifying registry-scoped
// status ids.
func WithQualifier(q string) BinderOpt {
	return func(b *Binder) {
		b.qualifier = q
	}
}

// NewBinder creates a Binder with the default caching document loader.
func NewBinder(opts ...BinderOpt) *Binder {
	b := &Binder{
		loader:    NewDocumentLoader(),
		qualifier: DefaultQualifier,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Expand returns the JSON-LD expanded form of the credential document.
// Expansion is deterministic; a context that cannot be resolved or a
// malformed document fails with ErrExpansion.
func (b *Binder) Expand(doc map[string]interface{}) ([]interface{}, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: document is nil", ErrExpansion)
	}

	proc := ld.NewJsonLdProcessor()
	options := ld.NewJsonLdOptions("")
	options.ProcessingMode = ld.JsonLd_1_1
	options.DocumentLoader = b.loader

	expanded, err := proc.Expand(doc, options)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExpansion, err)
	}
	if len(expanded) == 0 {
		return nil, fmt.Errorf("%w: document expanded to nothing", ErrExpansion)
	}
	return expanded, nil
}

// DeriveRevocationID extracts the qualifier-prefixed registry id from the
// expanded credential and computes the member revocation id as a blake2b-256
// digest of the expanded credential id bound to that registry.
//
// It fails with rerr.ErrNoStatus when no qualifying credentialStatus entry
// is present; callers that do not require revocability treat that as "not
// revocable".
func (b *Binder) DeriveRevocationID(expanded []interface{}) (*Binding, error) {
	if len(expanded) == 0 {
		return nil, fmt.Errorf("%w: expanded form is empty", ErrExpansion)
	}
	node, ok := expanded[0].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: expanded root is not a node object", ErrExpansion)
	}

	credID, ok := node["@id"].(string)
	if !ok || credID == "" {
		return nil, fmt.Errorf("credential has no id")
	}

	statusID, err := b.statusID(node)
	if err != nil {
		return nil, err
	}

	regID, err := dto.ParseRegistryID(strings.TrimPrefix(statusID, b.qualifier))
	if err != nil {
		return nil, fmt.Errorf("credentialStatus id %q: %w", statusID, err)
	}

	return &Binding{
		RegistryID:   regID,
		RevocationID: deriveMemberID(regID, credID),
		CredentialID: credID,
	}, nil
}

// BindCredential expands the credential and derives its revocation id in one
// step.
func (b *Binder) BindCredential(doc map[string]interface{}) (*Binding, error) {
	expanded, err := b.Expand(doc)
	if err != nil {
		return nil, err
	}
	return b.DeriveRevocationID(expanded)
}

// statusID returns the first credentialStatus id carrying the qualifier.
func (b *Binder) statusID(node map[string]interface{}) (string, error) {
	entries, ok := node[credentialStatusIRI].([]interface{})
	if !ok {
		return "", fmt.Errorf("credential %w", rerr.ErrNoStatus)
	}

	for _, entry := range entries {
		m, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		id, ok := m["@id"].(string)
		if !ok {
			continue
		}
		if strings.HasPrefix(id, b.qualifier) {
			return id, nil
		}
	}
	return "", fmt.Errorf("credential %w", rerr.ErrNoStatus)
}

// deriveMemberID hashes the expanded credential id into the registry's id
// space. The digest is pure: no randomness, no time dependence.
func deriveMemberID(reg dto.RegistryID, credID string) dto.RevocationID {
	h, _ := blake2b.New256(nil)
	h.Write(reg[:])
	h.Write([]byte(credID))

	var out dto.RevocationID
	copy(out[:], h.Sum(nil))
	return out
}

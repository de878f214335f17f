// Package trust composes the signature-suite dispatcher with the revocation
// status check to decide whether a presented credential is currently
// trustworthy.
//
// The cryptographic check always runs first; the revocation registry is only
// consulted for credentials whose proof verified. A credential that is both
// revoked and cryptographically invalid therefore reports the cryptographic
// failure.
package trust

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/pilacorp/go-trust-registry/binding"
	"github.com/pilacorp/go-trust-registry/registry/dto"
	"github.com/pilacorp/go-trust-registry/registry/rerr"
)

// RegistryLookup is the read side of the revocation registry store.
type RegistryLookup interface {
	IsRevoked(registry dto.RegistryID, id dto.RevocationID) (bool, error)
}

// Result is the outcome of a trust check. Reason is set whenever Verified is
// false.
type Result struct {
	Verified bool
	Revoked  bool
	Reason   string
}

// Pipeline runs the full trust check: proof verification followed by the
// revocation lookup.
type Pipeline struct {
	suites  *Suites
	binder  *binding.Binder
	lookup  RegistryLookup
	resolve KeyResolver
}

// PipelineOpt configures a Pipeline.
type PipelineOpt func(*Pipeline)

// WithSuites replaces the default suite set.
func WithSuites(s *Suites) PipelineOpt {
	return func(p *Pipeline) {
		p.suites = s
	}
}

// WithBinder replaces the default credential binder.
func WithBinder(b *binding.Binder) PipelineOpt {
	return func(p *Pipeline) {
		p.binder = b
	}
}

// WithKeyResolver sets the resolver used to turn a proof's
// verificationMethod into public key bytes.
func WithKeyResolver(r KeyResolver) PipelineOpt {
	return func(p *Pipeline) {
		p.resolve = r
	}
}

// NewPipeline creates a trust pipeline over the given revocation lookup.
func NewPipeline(lookup RegistryLookup, opts ...PipelineOpt) *Pipeline {
	p := &Pipeline{
		suites: NewSuites(),
		binder: binding.NewBinder(),
		lookup: lookup,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CheckTrust checks an embedded-proof credential document.
//
// A failed signature or a revoked credential yields Verified=false with a
// reason; a returned error means the check itself could not run (unknown
// suite, expansion failure, lookup failure).
func (p *Pipeline) CheckTrust(doc map[string]interface{}) (*Result, error) {
	proof := firstProof(doc["proof"])
	if proof == nil {
		return &Result{Reason: "credential has no proof"}, nil
	}

	proofType, _ := proof["type"].(string)
	suite, ok := p.suites.Lookup(proofType)
	if !ok {
		return nil, fmt.Errorf("no suite registered for proof type %q", proofType)
	}

	signature, err := proofSignature(proof)
	if err != nil {
		return &Result{Reason: err.Error()}, nil
	}

	publicKey, err := p.resolveProofKey(proof)
	if err != nil {
		return nil, err
	}

	signingInput, err := p.binder.SigningInput(doc)
	if err != nil {
		return nil, err
	}

	if err := suite.Verify(signingInput, signature, publicKey); err != nil {
		return &Result{Reason: fmt.Sprintf("signature verification failed: %v", err)}, nil
	}

	return p.revocationResult(doc)
}

// CheckTrustJWT checks a compact JWT credential. The signature is verified
// against the key resolved from the token's kid header; the revocation check
// then runs on the embedded vc document.
func (p *Pipeline) CheckTrustJWT(token string) (*Result, error) {
	doc, err := parseJWTCredential(token, p.resolve)
	if err != nil {
		return &Result{Reason: err.Error()}, nil
	}
	return p.revocationResult(doc)
}

// CheckTrustBatch checks independent credentials in parallel. Results are
// returned in input order; the first hard error aborts the batch.
func (p *Pipeline) CheckTrustBatch(ctx context.Context, docs []map[string]interface{}) ([]*Result, error) {
	results := make([]*Result, len(docs))

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, doc := range docs {
		g.Go(func() error {
			res, err := p.CheckTrust(doc)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// revocationResult derives the credential's revocation id and consults the
// registry. A credential without a qualifying status is not revocable and
// passes.
func (p *Pipeline) revocationResult(doc map[string]interface{}) (*Result, error) {
	bnd, err := p.binder.BindCredential(doc)
	if err != nil {
		if errors.Is(err, rerr.ErrNoStatus) {
			return &Result{Verified: true}, nil
		}
		return nil, err
	}

	revoked, err := p.lookup.IsRevoked(bnd.RegistryID, bnd.RevocationID)
	if err != nil {
		return nil, fmt.Errorf("failed to check revocation status: %w", err)
	}
	if revoked {
		return &Result{Revoked: true, Reason: "credential is revoked"}, nil
	}
	return &Result{Verified: true}, nil
}

func (p *Pipeline) resolveProofKey(proof map[string]interface{}) ([]byte, error) {
	if p.resolve == nil {
		return nil, nil
	}
	vm, _ := proof["verificationMethod"].(string)
	if vm == "" {
		return nil, fmt.Errorf("proof has no verificationMethod")
	}
	key, err := p.resolve(vm)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve verification method %q: %w", vm, err)
	}
	return key, nil
}

// firstProof returns the first proof object from a proof field that may be
// a single object or an array.
func firstProof(raw interface{}) map[string]interface{} {
	switch v := raw.(type) {
	case map[string]interface{}:
		return v
	case []interface{}:
		for _, entry := range v {
			if m, ok := entry.(map[string]interface{}); ok {
				return m
			}
		}
	}
	return nil
}

func proofSignature(proof map[string]interface{}) ([]byte, error) {
	value, _ := proof["proofValue"].(string)
	if value == "" {
		return nil, fmt.Errorf("proof has no proofValue")
	}
	sig, err := hex.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("proofValue is not hex encoded")
	}
	return sig, nil
}

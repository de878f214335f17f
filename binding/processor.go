package binding

import (
	"crypto/sha256"
	"fmt"

	"github.com/piprate/json-gold/ld"
)

// Canonicalize normalizes a JSON-LD document to n-quads with URDNA2015 and
// returns the serialized dataset. Proof suites sign and verify over the
// digest of this form.
func (b *Binder) Canonicalize(doc map[string]interface{}) ([]byte, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: document is nil", ErrExpansion)
	}

	proc := ld.NewJsonLdProcessor()
	options := ld.NewJsonLdOptions("")
	options.Format = "application/n-quads"
	options.Algorithm = ld.AlgorithmURDNA2015
	options.ProcessingMode = ld.JsonLd_1_1
	options.DocumentLoader = b.loader

	normalized, err := proc.Normalize(doc, options)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExpansion, err)
	}

	result, ok := normalized.(string)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected normalized form %T", ErrExpansion, normalized)
	}
	return []byte(result), nil
}

// SigningInput canonicalizes the document without its proof field and
// returns the SHA-256 digest used as signing input.
func (b *Binder) SigningInput(doc map[string]interface{}) ([]byte, error) {
	unsigned := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		if k != "proof" {
			unsigned[k] = v
		}
	}

	canonical, err := b.Canonicalize(unsigned)
	if err != nil {
		return nil, err
	}

	hash := sha256.Sum256(canonical)
	return hash[:], nil
}

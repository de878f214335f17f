package binding

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// ValidateCredential validates the credential against every credentialSchema
// entry it declares. Entries without an id are skipped; a schema that cannot
// be fetched or that rejects the credential is an error.
func ValidateCredential(doc map[string]interface{}) error {
	schemas := asArray(doc["credentialSchema"])
	for _, raw := range schemas {
		schema, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		schemaID, ok := schema["id"].(string)
		if !ok || schemaID == "" {
			continue
		}

		schemaLoader := gojsonschema.NewReferenceLoader(schemaID)
		credentialLoader := gojsonschema.NewGoLoader(doc)

		result, err := gojsonschema.Validate(schemaLoader, credentialLoader)
		if err != nil {
			return fmt.Errorf("failed to validate against schema %s: %w", schemaID, err)
		}
		if !result.Valid() {
			return fmt.Errorf("credential does not satisfy schema %s: %v", schemaID, result.Errors())
		}
	}
	return nil
}

// ValidateCredentialWithSchema validates the credential against a schema
// document supplied inline, without fetching anything.
func ValidateCredentialWithSchema(doc map[string]interface{}, schemaJSON string) error {
	if schemaJSON == "" {
		return fmt.Errorf("schema is empty")
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schemaJSON),
		gojsonschema.NewGoLoader(doc),
	)
	if err != nil {
		return fmt.Errorf("failed to validate credential: %w", err)
	}
	if !result.Valid() {
		return fmt.Errorf("credential does not satisfy schema: %v", result.Errors())
	}
	return nil
}

// asArray ensures a value is represented as an array.
func asArray(value interface{}) []interface{} {
	if value == nil {
		return nil
	}
	if arr, ok := value.([]interface{}); ok {
		return arr
	}
	return []interface{}{value}
}

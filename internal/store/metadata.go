package store

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// NormalizeMetadataValue converts a metadata value into a validated JSON
// string. Accepts string, []byte, or json.RawMessage.
func NormalizeMetadataValue(value interface{}) (string, error) {
	var jsonStr string
	switch v := value.(type) {
	case string:
		jsonStr = v
	case []byte:
		jsonStr = string(v)
	case json.RawMessage:
		jsonStr = string(v)
	default:
		return "", fmt.Errorf("metadata must be string, []byte, or json.RawMessage, got %T", value)
	}
	if !json.Valid([]byte(jsonStr)) {
		return "", fmt.Errorf("metadata is not valid JSON")
	}
	return jsonStr, nil
}

var validMetadataKeyRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.]*$`)

// ValidateMetadataKey checks that a metadata key is safe for use as a
// namespaced key (letters/digits/underscore/dot, starting with a letter
// or underscore).
func ValidateMetadataKey(key string) error {
	if !validMetadataKeyRe.MatchString(key) {
		return fmt.Errorf("invalid metadata key %q: must match [a-zA-Z_][a-zA-Z0-9_.]*", key)
	}
	return nil
}

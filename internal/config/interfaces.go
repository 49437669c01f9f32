package config

import "context"

// SecretProvider resolves secret values by key. SSMProvider serves deployed
// environments; local runs need none.
type SecretProvider interface {
	// GetParametersBatch resolves keys and returns a key -> plaintext map.
	// Keys that do not exist are omitted or reported as an error, depending on
	// the implementation.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}

package store

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	// APIKeyPrefix marks keys issued for the dashboard API.
	APIKeyPrefix = "cti_"
	// apiKeyStorePrefix namespaces API key metadata in the KV store.
	apiKeyStorePrefix = "cti:apikey:"
)

// APIKeyMeta describes an issued key. Only the SHA-256 of the raw key is
// stored.
type APIKeyMeta struct {
	ID         string `json:"id"`
	Label      string `json:"label"`
	Prefix     string `json:"prefix"`
	CreatedAt  string `json:"created_at"`
	LastUsedAt string `json:"last_used_at,omitempty"`
}

// GenerateAPIKey returns a new random key. The raw key is never persisted, so
// this is the only time it is available.
func GenerateAPIKey() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return APIKeyPrefix + hex.EncodeToString(b), nil
}

func hashKey(rawKey string) string {
	h := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(h[:])
}

// IssueAPIKey generates a key, stores its metadata and returns both.
func IssueAPIKey(ctx context.Context, s KVStore, label string) (string, APIKeyMeta, error) {
	raw, err := GenerateAPIKey()
	if err != nil {
		return "", APIKeyMeta{}, err
	}
	meta := APIKeyMeta{
		ID:        hashKey(raw),
		Label:     label,
		Prefix:    raw[:len(APIKeyPrefix)+8] + "...",
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err := putKeyMeta(ctx, s, meta); err != nil {
		return "", APIKeyMeta{}, err
	}
	return raw, meta, nil
}

// ValidateAPIKey returns the metadata of rawKey and records its use. Unknown
// keys yield an error wrapping ErrNotFound.
func ValidateAPIKey(ctx context.Context, s KVStore, rawKey string) (APIKeyMeta, error) {
	if !strings.HasPrefix(rawKey, APIKeyPrefix) {
		return APIKeyMeta{}, fmt.Errorf("invalid API key: %w", ErrNotFound)
	}
	value, err := s.GetValue(ctx, apiKeyStorePrefix+hashKey(rawKey))
	if err != nil {
		return APIKeyMeta{}, fmt.Errorf("invalid API key: %w", err)
	}

	var meta APIKeyMeta
	if err := json.Unmarshal([]byte(value), &meta); err != nil {
		return APIKeyMeta{}, fmt.Errorf("failed to unmarshal API key metadata: %w", err)
	}

	// Best effort; a failed update does not reject the request. SET XX so a
	// key revoked since the read is not written back.
	meta.LastUsedAt = time.Now().UTC().Format(time.RFC3339)
	if data, err := json.Marshal(meta); err == nil {
		_, _ = s.SetValueXX(ctx, apiKeyStorePrefix+meta.ID, string(data))
	}
	return meta, nil
}

// ListAPIKeys returns every stored key, oldest first.
func ListAPIKeys(ctx context.Context, s KVStore) ([]APIKeyMeta, error) {
	keys, err := s.ListKeys(ctx, apiKeyStorePrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("failed to list API keys: %w", err)
	}

	result := make([]APIKeyMeta, 0, len(keys))
	for _, k := range keys {
		value, err := s.GetValue(ctx, k)
		if err != nil {
			continue // deleted between list and get
		}
		var meta APIKeyMeta
		if err := json.Unmarshal([]byte(value), &meta); err != nil {
			continue
		}
		result = append(result, meta)
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].CreatedAt < result[j].CreatedAt })
	return result, nil
}

// RevokeAPIKey deletes a key by its ID.
func RevokeAPIKey(ctx context.Context, s KVStore, keyID string) error {
	if _, err := s.GetValue(ctx, apiKeyStorePrefix+keyID); err != nil {
		return fmt.Errorf("unknown API key %s: %w", keyID, err)
	}
	if err := s.DeleteValue(ctx, apiKeyStorePrefix+keyID); err != nil {
		return fmt.Errorf("failed to revoke API key: %w", err)
	}
	return nil
}

func putKeyMeta(ctx context.Context, s KVStore, meta APIKeyMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal API key metadata: %w", err)
	}
	if err := s.SetValue(ctx, apiKeyStorePrefix+meta.ID, string(data)); err != nil {
		return fmt.Errorf("failed to store API key: %w", err)
	}
	return nil
}

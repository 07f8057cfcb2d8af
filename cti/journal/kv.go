// Package journal persists history entries so a session can be restored
// after a restart.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/CTIDashboard/go-api/cti"
	"github.com/CTIDashboard/go-api/cti/store"
)

const kvPrefix = "cti:history:"

// KV journals entries into a key/value store, one key per entry. Keys carry a
// zero-padded sequence number so lexical order is insertion order.
type KV struct {
	kv  store.KVStore
	mu  sync.Mutex
	seq int
}

// NewKV creates a KV journal, continuing after the highest existing sequence.
func NewKV(ctx context.Context, kv store.KVStore) (*KV, error) {
	j := &KV{kv: kv}
	keys, err := kv.ListKeys(ctx, kvPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("list journal keys: %w", err)
	}
	for _, key := range keys {
		if n, ok := parseSeq(key); ok && n > j.seq {
			j.seq = n
		}
	}
	return j, nil
}

// Append stores entry under the next sequence number.
func (j *KV) Append(ctx context.Context, entry cti.HistoryEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal history entry: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	next := j.seq + 1
	if err := j.kv.SetValue(ctx, seqKey(next), string(data)); err != nil {
		return fmt.Errorf("failed to journal history entry: %w", err)
	}
	j.seq = next
	return nil
}

// Load returns every journaled entry in insertion order.
func (j *KV) Load(ctx context.Context) ([]cti.HistoryEntry, error) {
	keys, err := j.kv.ListKeys(ctx, kvPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("list journal keys: %w", err)
	}

	type keyed struct {
		seq int
		key string
	}
	ordered := make([]keyed, 0, len(keys))
	for _, key := range keys {
		if n, ok := parseSeq(key); ok {
			ordered = append(ordered, keyed{n, key})
		}
	}
	// KEYS gives no ordering guarantee.
	sort.Slice(ordered, func(a, b int) bool { return ordered[a].seq < ordered[b].seq })

	entries := make([]cti.HistoryEntry, 0, len(ordered))
	for _, k := range ordered {
		value, err := j.kv.GetValue(ctx, k.key)
		if err != nil {
			return nil, err
		}
		var e cti.HistoryEntry
		if err := json.Unmarshal([]byte(value), &e); err != nil {
			return nil, fmt.Errorf("failed to unmarshal journal entry %s: %w", k.key, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func seqKey(n int) string {
	return fmt.Sprintf("%s%010d", kvPrefix, n)
}

func parseSeq(key string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimPrefix(key, kvPrefix))
	return n, err == nil && strings.HasPrefix(key, kvPrefix)
}

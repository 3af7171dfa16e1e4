package redis

import (
	"context"
	"encoding/json"
	"fmt"

	backend "github.com/redis/go-redis/v9"

	"github.com/riverbedai/riverbed/pkg/domain"
)

// FactLog implements ports.FactLog as a Redis list. Entries are only ever
// appended; the sediment layer handles superseding in memory.
type FactLog struct {
	client *backend.Client
	key    string
}

// NewFactLog creates a fact log backed by the given client. An empty key
// falls back to the default.
func NewFactLog(client *backend.Client, key string) *FactLog {
	if key == "" {
		key = "riverbed:facts"
	}
	return &FactLog{client: client, key: key}
}

// Append pushes facts onto the tail of the list.
func (l *FactLog) Append(ctx context.Context, facts []domain.Fact) error {
	if len(facts) == 0 {
		return nil
	}

	values := make([]interface{}, 0, len(facts))
	for _, f := range facts {
		data, err := json.Marshal(f)
		if err != nil {
			return fmt.Errorf("failed to marshal fact %s: %w", f.ID, err)
		}
		values = append(values, data)
	}

	if err := l.client.RPush(ctx, l.key, values...).Err(); err != nil {
		return fmt.Errorf("failed to append facts: %w", err)
	}
	return nil
}

// All returns every fact in append order.
func (l *FactLog) All(ctx context.Context) ([]domain.Fact, error) {
	entries, err := l.client.LRange(ctx, l.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read facts: %w", err)
	}

	facts := make([]domain.Fact, 0, len(entries))
	for i, entry := range entries {
		var f domain.Fact
		if err := json.Unmarshal([]byte(entry), &f); err != nil {
			return nil, fmt.Errorf("failed to unmarshal fact at %d: %w", i, err)
		}
		facts = append(facts, f)
	}
	return facts, nil
}

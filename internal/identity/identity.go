package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"chapter-quiz-service/internal/kv"
)

const anonymousKey = "anonymous_id"

// Resolve returns the device's anonymous identity, minting and storing a new
// one on first use. A stored identity is never replaced.
func Resolve(ctx context.Context, store kv.Store) (string, error) {
	raw, ok, err := store.Get(ctx, anonymousKey)
	if err != nil {
		return "", fmt.Errorf("load anonymous id: %w", err)
	}
	if ok {
		if id := strings.TrimSpace(string(raw)); id != "" {
			return id, nil
		}
	}
	id := uuid.NewString()
	if err := store.Set(ctx, anonymousKey, []byte(id)); err != nil {
		return "", fmt.Errorf("save anonymous id: %w", err)
	}
	return id, nil
}

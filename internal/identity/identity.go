package identity

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ClientID is the persisted pseudonymous token representing one customer
// browsing context. It is created lazily on first use and never rotated.
type ClientID = string

// Load returns the client identity persisted at path, generating and
// persisting a fresh one when none exists yet.
func Load(path string) (ClientID, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		id := strings.TrimSpace(string(data))
		if id != "" {
			return id, nil
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to read identity file: %w", err)
	}

	id := Generate()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create identity dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("failed to persist identity: %w", err)
	}

	return id, nil
}

// Generate creates a new pseudonymous customer id in the
// customer_<millis>_<suffix> format.
func Generate() ClientID {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

	suffix := make([]byte, 9)
	for i := range suffix {
		suffix[i] = alphabet[rand.Intn(len(alphabet))]
	}

	return fmt.Sprintf("customer_%d_%s", time.Now().UnixMilli(), suffix)
}

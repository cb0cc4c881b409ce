package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
)

// ComputeHash hashes prev + canonical JSON of the payload.
// Struct payloads marshal deterministically, so equal content gives equal hashes.
func ComputeHash(prev string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	h.Write([]byte(prev))
	h.Write(data)

	return hex.EncodeToString(h.Sum(nil)), nil
}

// Chain links consecutive uploads, each hash covers the previous one.
// The chain lives in memory only and restarts empty with the process.
type Chain struct {
	mu   sync.Mutex
	last string
}

// Next hashes the payload onto the chain and returns the new and previous hash.
func (c *Chain) Next(payload any) (hash, prev string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	hash, err = ComputeHash(c.last, payload)
	if err != nil {
		return "", "", err
	}
	prev = c.last
	c.last = hash
	return hash, prev, nil
}

// Last returns the most recent hash, empty before the first Next.
func (c *Chain) Last() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Package keyring holds one or more credential sets for a venue and rotates
// between them.
package keyring

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tukar/pkg/core"
)

type KeyRing struct {
	mu       sync.RWMutex
	keys     []*Key
	current  int
	strategy RotationStrategy
	logger   zerolog.Logger
}

// Key is one credential set with its usage bookkeeping.
type Key struct {
	ID          string
	Credentials core.Credentials
	Disabled    bool
	LastUsed    time.Time
	ErrorCount  int
}

type RotationStrategy int

const (
	// RotationRoundRobin moves to the next key after every use.
	RotationRoundRobin RotationStrategy = iota
	// RotationOnError moves to the next key after any failed request.
	RotationOnError
	// RotationOnRateLimit moves to the next key only when the venue throttles us.
	RotationOnRateLimit
)

func New(keys []*Key, strategy RotationStrategy, logger zerolog.Logger) *KeyRing {
	keysCopy := make([]*Key, 0, len(keys))
	for _, k := range keys {
		cp := *k
		keysCopy = append(keysCopy, &cp)
	}
	return &KeyRing{
		keys:     keysCopy,
		strategy: strategy,
		logger:   logger,
	}
}

// Single wraps one credential set. A nil creds gives an empty ring.
func Single(creds *core.Credentials) *KeyRing {
	if creds == nil {
		return New(nil, RotationOnRateLimit, zerolog.Nop())
	}
	return New([]*Key{{ID: "default", Credentials: *creds}}, RotationOnRateLimit, zerolog.Nop())
}

// Len returns the number of keys, enabled or not.
func (k *KeyRing) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.keys)
}

// Current returns a copy of the active credentials, or nil when every key is
// disabled or the ring is empty.
func (k *KeyRing) Current() *core.Credentials {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if key := k.currentLocked(); key != nil {
		creds := key.Credentials
		return &creds
	}
	return nil
}

func (k *KeyRing) currentLocked() *Key {
	for i := 0; i < len(k.keys); i++ {
		idx := (k.current + i) % len(k.keys)
		if !k.keys[idx].Disabled {
			return k.keys[idx]
		}
	}
	return nil
}

func (k *KeyRing) Rotate() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.rotateLocked()
}

func (k *KeyRing) rotateLocked() {
	if len(k.keys) == 0 {
		return
	}

	start := k.current
	for {
		k.current = (k.current + 1) % len(k.keys)
		if !k.keys[k.current].Disabled || k.current == start {
			break
		}
	}
	k.logger.Debug().Str("key", k.keys[k.current].String()).Msg("api key rotated")
}

// MarkUsed records a successful use of the active key.
func (k *KeyRing) MarkUsed() {
	k.mu.Lock()
	defer k.mu.Unlock()

	key := k.currentLocked()
	if key == nil {
		return
	}
	key.LastUsed = time.Now()
	if k.strategy == RotationRoundRobin {
		k.rotateLocked()
	}
}

// OnError records a failed request made with the active key and rotates
// according to the strategy.
func (k *KeyRing) OnError(err error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	key := k.currentLocked()
	if key == nil {
		return
	}
	key.ErrorCount++

	switch k.strategy {
	case RotationOnError:
		k.rotateLocked()
	case RotationOnRateLimit:
		if core.IsRateLimitError(err) {
			k.rotateLocked()
		}
	}
}

func (k *KeyRing) Disable(id string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	for _, key := range k.keys {
		if key.ID == id {
			key.Disabled = true
			return
		}
	}
}

func (k *KeyRing) Enable(id string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	for _, key := range k.keys {
		if key.ID == id {
			key.Disabled = false
			key.ErrorCount = 0
			return
		}
	}
}

func (k *KeyRing) Add(key *Key) {
	k.mu.Lock()
	defer k.mu.Unlock()

	for _, existing := range k.keys {
		if existing.ID == key.ID {
			return
		}
	}
	k.keys = append(k.keys, &Key{ID: key.ID, Credentials: key.Credentials})
}

func (k *KeyRing) Remove(id string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	for i, key := range k.keys {
		if key.ID == id {
			k.keys = append(k.keys[:i], k.keys[i+1:]...)
			if k.current >= len(k.keys) {
				k.current = 0
			}
			return
		}
	}
}

func (k *Key) String() string {
	return fmt.Sprintf("Key{ID:%s, APIKey:%s}", k.ID, core.MaskKey(k.Credentials.APIKey))
}

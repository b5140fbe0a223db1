package keyring

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tukar/pkg/core"
)

func testKeys() []*Key {
	return []*Key{
		{ID: "a", Credentials: core.Credentials{APIKey: "key-a-123456789", SecretKey: "sa"}},
		{ID: "b", Credentials: core.Credentials{APIKey: "key-b-123456789", SecretKey: "sb"}},
		{ID: "c", Credentials: core.Credentials{APIKey: "key-c-123456789", SecretKey: "sc"}},
	}
}

func TestKeyRing_Empty(t *testing.T) {
	ring := Single(nil)
	assert.Nil(t, ring.Current())
	assert.Equal(t, 0, ring.Len())

	ring.Rotate()
	ring.MarkUsed()
	ring.OnError(errors.New("x"))
	assert.Nil(t, ring.Current())
}

func TestKeyRing_Single(t *testing.T) {
	ring := Single(&core.Credentials{APIKey: "k", SecretKey: "s"})
	creds := ring.Current()
	require.NotNil(t, creds)
	assert.Equal(t, "k", creds.APIKey)

	creds.APIKey = "mutated"
	assert.Equal(t, "k", ring.Current().APIKey, "Current returns a copy")
}

func TestKeyRing_RotateOnRateLimit(t *testing.T) {
	ring := New(testKeys(), RotationOnRateLimit, zerolog.Nop())
	assert.Equal(t, "key-a-123456789", ring.Current().APIKey)

	ring.OnError(core.NewExchangeError("binance", core.ErrorTypeBadRequest, 400, "bad"))
	assert.Equal(t, "key-a-123456789", ring.Current().APIKey)

	ring.OnError(core.NewExchangeError("binance", core.ErrorTypeRateLimit, 429, "slow down"))
	assert.Equal(t, "key-b-123456789", ring.Current().APIKey)
}

func TestKeyRing_RotateOnError(t *testing.T) {
	ring := New(testKeys(), RotationOnError, zerolog.Nop())
	ring.OnError(errors.New("any"))
	assert.Equal(t, "key-b-123456789", ring.Current().APIKey)
}

func TestKeyRing_RoundRobin(t *testing.T) {
	ring := New(testKeys(), RotationRoundRobin, zerolog.Nop())

	var seen []string
	for i := 0; i < 4; i++ {
		seen = append(seen, ring.Current().APIKey)
		ring.MarkUsed()
	}
	assert.Equal(t, []string{"key-a-123456789", "key-b-123456789", "key-c-123456789", "key-a-123456789"}, seen)
}

func TestKeyRing_DisableSkips(t *testing.T) {
	ring := New(testKeys(), RotationOnRateLimit, zerolog.Nop())
	ring.Disable("a")
	assert.Equal(t, "key-b-123456789", ring.Current().APIKey)

	ring.Disable("b")
	ring.Disable("c")
	assert.Nil(t, ring.Current())

	ring.Enable("c")
	assert.Equal(t, "key-c-123456789", ring.Current().APIKey)
}

func TestKeyRing_AddRemove(t *testing.T) {
	ring := New(testKeys()[:1], RotationOnRateLimit, zerolog.Nop())
	ring.Add(&Key{ID: "b", Credentials: core.Credentials{APIKey: "kb"}})
	ring.Add(&Key{ID: "b", Credentials: core.Credentials{APIKey: "dup"}})
	assert.Equal(t, 2, ring.Len())

	ring.Rotate()
	assert.Equal(t, "kb", ring.Current().APIKey)

	ring.Remove("b")
	assert.Equal(t, 1, ring.Len())
	assert.Equal(t, "key-a-123456789", ring.Current().APIKey)
}

func TestKey_StringMasksSecrets(t *testing.T) {
	key := testKeys()[0]
	s := key.String()
	assert.Equal(t, "Key{ID:a, APIKey:key-****6789}", s)
	assert.NotContains(t, s, "sa")
}

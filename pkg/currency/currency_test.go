package currency

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalizer_Canonicalize(t *testing.T) {
	c := New(map[string]string{
		"YOYO": "YOYOW",
		"xbt":  "BTC",
		"BIFI": "Bifrost",
	})

	tests := []struct {
		in   string
		want string
	}{
		{"YOYO", "YOYOW"},
		{"yoyo", "YOYOW"},
		{"BTC", "BTC"},
		{"btc", "BTC"},
		{"XBT", "BTC"},
		{"BIFI", "Bifrost"},
		{"usdt", "USDT"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Canonicalize(tt.in))
		})
	}
}

func TestCanonicalizer_Nil(t *testing.T) {
	var c *Canonicalizer
	assert.Equal(t, "ETH", c.Canonicalize("eth"))
}

func TestCanonicalizer_Pair(t *testing.T) {
	c := New(map[string]string{"XBT": "BTC", "XDG": "DOGE"})
	base, quote := c.Pair("XDG", "xbt")
	assert.Equal(t, "DOGE", base)
	assert.Equal(t, "BTC", quote)
}

func TestCanonicalizer_Collision(t *testing.T) {
	c := New(map[string]string{
		"XBT":  "BTC",
		"XXBT": "BTC",
		"UST":  "USDT",
	})

	assert.Equal(t, "BTC", c.Canonicalize("XBT"))
	assert.Equal(t, "BTC", c.Canonicalize("xxbt"))
	assert.Equal(t, "BTC", c.Canonicalize("BTC"))
	assert.Equal(t, "USDT", c.Canonicalize("UST"))
	assert.Equal(t, "USDT", c.Canonicalize("USDT"))
}

func TestSplitSymbol(t *testing.T) {
	base, quote, ok := SplitSymbol("BTC/USDT")
	assert.True(t, ok)
	assert.Equal(t, "BTC", base)
	assert.Equal(t, "USDT", quote)
	assert.Equal(t, "BTC/USDT", Symbol(base, quote))

	for _, bad := range []string{"BTCUSDT", "/USDT", "BTC/"} {
		_, _, ok = SplitSymbol(bad)
		assert.False(t, ok, bad)
	}
}

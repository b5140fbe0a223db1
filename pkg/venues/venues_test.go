package venues

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tukar/pkg/core"
	"tukar/pkg/exchange"
)

func TestNames(t *testing.T) {
	assert.Equal(t, []string{"binance", "bitfinex", "cex", "exmo", "kraken", "kucoin"}, Names())
}

func TestNew(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			ex, err := New(core.DefaultConfig(name), zerolog.Nop())
			require.NoError(t, err)
			assert.Equal(t, name, ex.Name())
			assert.True(t, exchange.Has(ex, core.OpFetchMarkets))
			require.NoError(t, ex.(exchange.Closer).Close())
		})
	}
}

func TestNew_Unsupported(t *testing.T) {
	ex, err := New(core.DefaultConfig("mtgox"), zerolog.Nop())
	require.Error(t, err)
	assert.Nil(t, ex)
}

func TestLoad(t *testing.T) {
	file, err := core.ParseFile([]byte(`
venues:
  - exchange: kraken
  - exchange: exmo
    timeout: 5s
`))
	require.NoError(t, err)

	container, err := Load(file, zerolog.Nop())
	require.NoError(t, err)
	defer container.Close()
	assert.Equal(t, []string{"exmo", "kraken"}, container.Names())
}

func TestLoad_Failures(t *testing.T) {
	tests := map[string]string{
		"unsupported": "venues:\n  - exchange: mtgox\n",
		"duplicate":   "venues:\n  - exchange: kraken\n  - exchange: kraken\n",
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			file, err := core.ParseFile([]byte(raw))
			require.NoError(t, err)
			_, err = Load(file, zerolog.Nop())
			assert.Error(t, err)
		})
	}
}

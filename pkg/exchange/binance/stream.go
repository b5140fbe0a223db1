package binance

import (
	"context"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"

	"tukar/internal/ws"
	"tukar/pkg/core"
)

// tickerEvent is the 24hrTicker payload of the <symbol>@ticker stream.
type tickerEvent struct {
	Event              string      `json:"e"`
	EventTime          int64       `json:"E"`
	Symbol             string      `json:"s"`
	PriceChange        core.Number `json:"p"`
	PriceChangePercent core.Number `json:"P"`
	WeightedAvgPrice   core.Number `json:"w"`
	PrevClosePrice     core.Number `json:"x"`
	LastPrice          core.Number `json:"c"`
	BidPrice           core.Number `json:"b"`
	BidQty             core.Number `json:"B"`
	AskPrice           core.Number `json:"a"`
	AskQty             core.Number `json:"A"`
	OpenPrice          core.Number `json:"o"`
	HighPrice          core.Number `json:"h"`
	LowPrice           core.Number `json:"l"`
	Volume             core.Number `json:"v"`
	QuoteVolume        core.Number `json:"q"`
	CloseTime          int64       `json:"C"`
}

func (ev *tickerEvent) toTicker24h() *ticker24h {
	return &ticker24h{
		Symbol:             ev.Symbol,
		PriceChange:        ev.PriceChange,
		PriceChangePercent: ev.PriceChangePercent,
		WeightedAvgPrice:   ev.WeightedAvgPrice,
		PrevClosePrice:     ev.PrevClosePrice,
		LastPrice:          ev.LastPrice,
		BidPrice:           ev.BidPrice,
		BidQty:             ev.BidQty,
		AskPrice:           ev.AskPrice,
		AskQty:             ev.AskQty,
		OpenPrice:          ev.OpenPrice,
		HighPrice:          ev.HighPrice,
		LowPrice:           ev.LowPrice,
		Volume:             ev.Volume,
		QuoteVolume:        ev.QuoteVolume,
		CloseTime:          ev.CloseTime,
	}
}

func streamName(id string) string {
	return strings.ToLower(id) + "@ticker"
}

// WatchTicker streams 24h ticker updates for symbol until ctx is cancelled.
// Both channels are closed when the stream ends. Frames that fail to decode
// are skipped and reported on the error channel when it has room.
func (e *Exchange) WatchTicker(ctx context.Context, symbol string) (<-chan *core.Ticker, <-chan error) {
	out := make(chan *core.Ticker, 16)
	errs := make(chan error, 1)

	m, err := e.markets.Market(ctx, symbol)
	if err != nil {
		errs <- err
		close(out)
		close(errs)
		return out, errs
	}

	client := ws.NewClient(ws.Config{
		URL:              e.streamURL + "/" + streamName(m.ID),
		ReconnectEnabled: true,
	}, ws.WithLogger(e.logger))
	if err := client.Connect(ctx); err != nil {
		_ = client.Close()
		errs <- core.NewExchangeError(Name, core.ErrorTypeNetwork, 0, "ticker stream").WithCause(err)
		close(out)
		close(errs)
		return out, errs
	}

	go func() {
		defer close(errs)
		defer close(out)
		defer client.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case err := <-client.Errors():
				select {
				case errs <- core.NewExchangeError(Name, core.ErrorTypeNetwork, 0, "ticker stream").WithCause(err):
				case <-ctx.Done():
				}
				return
			case frame, ok := <-client.Messages():
				if !ok {
					return
				}
				var ev tickerEvent
				if err := sonic.Unmarshal(frame, &ev); err != nil {
					select {
					case errs <- core.NewBadResponse(Name, string(frame), fmt.Errorf("decode ticker event: %w", err)):
					default:
						e.logger.Warn().Err(err).Msg("dropping undecodable ticker event")
					}
					continue
				}
				if ev.Event != "24hrTicker" || ev.Symbol != m.ID {
					continue
				}
				select {
				case out <- e.normalizer.NormalizeTicker(ev.toTicker24h(), m):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, errs
}

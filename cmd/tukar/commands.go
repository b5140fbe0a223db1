package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tukar/pkg/aggregator"
	"tukar/pkg/core"
	"tukar/pkg/exchange"
	"tukar/pkg/order"
)

func init() {
	marketsCmd.Flags().String("venue", "", "venue name")
	rootCmd.AddCommand(marketsCmd)

	tickerCmd.Flags().String("venue", "", "venue name; every configured venue when empty")
	rootCmd.AddCommand(tickerCmd)

	balanceCmd.Flags().String("venue", "", "venue name; every configured venue when empty")
	rootCmd.AddCommand(balanceCmd)

	ordersCmd.Flags().String("venue", "", "venue name")
	ordersCmd.Flags().Bool("open", false, "only open orders")
	addHistoryFlags(ordersCmd)
	rootCmd.AddCommand(ordersCmd)

	tradesCmd.Flags().String("venue", "", "venue name")
	addHistoryFlags(tradesCmd)
	rootCmd.AddCommand(tradesCmd)

	orderCmd.Flags().String("venue", "", "venue name")
	addOrderFlags(orderCmd)
	rootCmd.AddCommand(orderCmd)

	rootCmd.AddCommand(capabilitiesCmd)
}

func addHistoryFlags(cmd *cobra.Command) {
	cmd.Flags().StringSlice("symbol", nil, "symbols, BTC/USDT,ETH/BTC...etc")
	cmd.Flags().Duration("since", 0, "lookback window, e.g. 24h")
	cmd.Flags().Int("limit", 0, "maximum number of results")
}

func addOrderFlags(cmd *cobra.Command) {
	cmd.Flags().String("side", "", "buy or sell")
	cmd.Flags().String("type", "limit", "limit or market")
	cmd.Flags().String("price", "", "limit price")
	cmd.Flags().String("amount", "", "amount in the base currency")
	cmd.Flags().String("tif", "", "time in force: GTC, IOC or FOK")
	cmd.Flags().String("client-order-id", "", "client order id")
}

var marketsCmd = &cobra.Command{
	Use:   "markets",
	Short: "list the spot markets of a venue",

	// SilenceUsage is an option to silence usage when an error occurs.
	SilenceUsage: true,

	RunE: func(cmd *cobra.Command, args []string) error {
		ex, _, err := capability[exchange.MarketFetcher](cmd, core.OpFetchMarkets)
		if err != nil {
			return err
		}
		ctx, cancel, err := commandContext(cmd)
		if err != nil {
			return err
		}
		defer cancel()

		markets, err := withRetry(ctx, ex.FetchMarkets)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), markets)
	},
}

var tickerCmd = &cobra.Command{
	Use:   "ticker SYMBOL...",
	Short: "print 24h tickers",
	Args:  cobra.MinimumNArgs(1),

	// SilenceUsage is an option to silence usage when an error occurs.
	SilenceUsage: true,

	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel, err := commandContext(cmd)
		if err != nil {
			return err
		}
		defer cancel()

		venue, err := cmd.Flags().GetString("venue")
		if err != nil {
			return err
		}
		if venue == "" {
			agg := aggregator.New(container, aggregator.WithLogger(logger))
			results := make(map[string][]venueResult, len(args))
			for _, symbol := range args {
				for _, r := range agg.Tickers(ctx, symbol) {
					results[symbol] = append(results[symbol], newVenueResult(r.Exchange, r.Ticker, r.Error))
				}
			}
			return printJSON(cmd.OutOrStdout(), results)
		}

		tickers, err := fetchTickers(ctx, cmd, args)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), tickers)
	},
}

// fetchTickers prefers the venue's batch endpoint and falls back to one
// request per symbol.
func fetchTickers(ctx context.Context, cmd *cobra.Command, symbols []string) ([]*core.Ticker, error) {
	if batch, _, err := capability[exchange.TickersFetcher](cmd, core.OpFetchTickers); err == nil && len(symbols) > 1 {
		return withRetry(ctx, func(ctx context.Context) ([]*core.Ticker, error) {
			return batch.FetchTickers(ctx, symbols...)
		})
	}

	single, _, err := capability[exchange.TickerFetcher](cmd, core.OpFetchTicker)
	if err != nil {
		return nil, err
	}
	bySymbol, err := exchange.FetchTickersConcurrently(ctx, single, symbols, exchange.DefaultFanOut)
	if err != nil {
		return nil, err
	}
	tickers := make([]*core.Ticker, 0, len(bySymbol))
	for _, symbol := range symbols {
		if t, ok := bySymbol[symbol]; ok {
			tickers = append(tickers, t)
		}
	}
	if len(tickers) == 0 {
		return nil, fmt.Errorf("no tickers for %v", symbols)
	}
	return tickers, nil
}

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "print account balances",

	// SilenceUsage is an option to silence usage when an error occurs.
	SilenceUsage: true,

	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel, err := commandContext(cmd)
		if err != nil {
			return err
		}
		defer cancel()

		venue, err := cmd.Flags().GetString("venue")
		if err != nil {
			return err
		}
		if venue == "" {
			agg := aggregator.New(container, aggregator.WithLogger(logger))
			var results []venueResult
			for _, r := range agg.Balances(ctx) {
				results = append(results, newVenueResult(r.Exchange, r.Balances, r.Error))
			}
			return printJSON(cmd.OutOrStdout(), results)
		}

		ex, _, err := capability[exchange.BalanceFetcher](cmd, core.OpFetchBalance)
		if err != nil {
			return err
		}
		balances, err := withRetry(ctx, ex.FetchBalance)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), balances)
	},
}

var ordersCmd = &cobra.Command{
	Use:   "orders",
	Short: "list open or historical orders",

	// SilenceUsage is an option to silence usage when an error occurs.
	SilenceUsage: true,

	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := historyOptions(cmd, time.Now())
		if err != nil {
			return err
		}
		open, err := cmd.Flags().GetBool("open")
		if err != nil {
			return err
		}
		ctx, cancel, err := commandContext(cmd)
		if err != nil {
			return err
		}
		defer cancel()

		var orders []*core.Order
		if open {
			ex, _, err := capability[exchange.OpenOrdersFetcher](cmd, core.OpFetchOpenOrders)
			if err != nil {
				return err
			}
			orders, err = withRetry(ctx, func(ctx context.Context) ([]*core.Order, error) {
				return ex.FetchOpenOrders(ctx, opts...)
			})
			if err != nil {
				return err
			}
		} else {
			ex, _, err := capability[exchange.OrdersFetcher](cmd, core.OpFetchOrders)
			if err != nil {
				return err
			}
			orders, err = withRetry(ctx, func(ctx context.Context) ([]*core.Order, error) {
				return ex.FetchOrders(ctx, opts...)
			})
			if err != nil {
				return err
			}
		}
		return printJSON(cmd.OutOrStdout(), orders)
	},
}

var tradesCmd = &cobra.Command{
	Use:   "trades",
	Short: "list the account's fills",

	// SilenceUsage is an option to silence usage when an error occurs.
	SilenceUsage: true,

	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := historyOptions(cmd, time.Now())
		if err != nil {
			return err
		}
		ex, _, err := capability[exchange.MyTradesFetcher](cmd, core.OpFetchMyTrades)
		if err != nil {
			return err
		}
		ctx, cancel, err := commandContext(cmd)
		if err != nil {
			return err
		}
		defer cancel()

		trades, err := withRetry(ctx, func(ctx context.Context) ([]*core.MyTrade, error) {
			return ex.FetchMyTrades(ctx, opts...)
		})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), trades)
	},
}

// go run ./cmd/tukar order --venue binance --side buy --price 50000 --amount 0.001 BTC/USDT
var orderCmd = &cobra.Command{
	Use:   "order SYMBOL",
	Short: "place a limit or market order",
	Args:  cobra.ExactArgs(1),

	// SilenceUsage is an option to silence usage when an error occurs.
	SilenceUsage: true,

	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := orderRequest(cmd, args[0])
		if err != nil {
			return err
		}
		ex, name, err := capability[exchange.OrderCreator](cmd, core.OpCreateOrder)
		if err != nil {
			return err
		}
		ctx, cancel, err := commandContext(cmd)
		if err != nil {
			return err
		}
		defer cancel()

		// never retried: a lost response may still have placed the order
		id, err := ex.CreateOrder(ctx, req)
		if err != nil {
			return err
		}
		logger.Info().Str("exchange", name).Str("symbol", req.Symbol).Str("id", id).Msg("order placed")
		return printJSON(cmd.OutOrStdout(), map[string]string{"id": id, "symbol": req.Symbol})
	},
}

func orderRequest(cmd *cobra.Command, symbol string) (*exchange.OrderRequest, error) {
	flags := cmd.Flags()
	side, _ := flags.GetString("side")
	orderType, _ := flags.GetString("type")
	price, _ := flags.GetString("price")
	amount, _ := flags.GetString("amount")
	tif, _ := flags.GetString("tif")
	clientID, _ := flags.GetString("client-order-id")

	b := order.NewBuilder(symbol)
	switch side {
	case "buy":
		b.Buy()
	case "sell":
		b.Sell()
	default:
		return nil, fmt.Errorf("--side must be buy or sell, got %q", side)
	}
	switch orderType {
	case "limit":
		b.Limit().Price(price)
	case "market":
		b.Market()
	default:
		return nil, fmt.Errorf("--type must be limit or market, got %q", orderType)
	}
	switch tif {
	case "":
	case "GTC":
		b.GTC()
	case "IOC":
		b.IOC()
	case "FOK":
		b.FOK()
	default:
		return nil, fmt.Errorf("--tif must be GTC, IOC or FOK, got %q", tif)
	}
	if clientID != "" {
		b.ClientOrderID(clientID)
	}
	return b.Amount(amount).Build()
}

var capabilitiesCmd = &cobra.Command{
	Use:   "capabilities",
	Short: "list the operations each configured venue supports",

	// SilenceUsage is an option to silence usage when an error occurs.
	SilenceUsage: true,

	RunE: func(cmd *cobra.Command, args []string) error {
		agg := aggregator.New(container, aggregator.WithLogger(logger))
		out := make(map[string][]string)
		for name, ops := range agg.Capabilities() {
			names := make([]string, 0, len(ops))
			for _, op := range ops {
				names = append(names, op.String())
			}
			out[name] = names
		}
		return printJSON(cmd.OutOrStdout(), out)
	},
}

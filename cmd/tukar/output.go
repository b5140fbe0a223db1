package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"tukar/pkg/core"
	"tukar/pkg/exchange"
)

func printJSON(w io.Writer, v any) error {
	data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// venueResult is one venue's part of a fan-out answer.
type venueResult struct {
	Exchange string `json:"exchange"`
	Data     any    `json:"data,omitempty"`
	Error    string `json:"error,omitempty"`
}

func newVenueResult(name string, data any, err error) venueResult {
	r := venueResult{Exchange: name}
	if err != nil {
		r.Error = err.Error()
		return r
	}
	r.Data = data
	return r
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc, error) {
	timeout, err := cmd.Flags().GetDuration("timeout")
	if err != nil {
		return nil, nil, err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	return ctx, cancel, nil
}

// capability resolves --venue and checks that it implements T.
func capability[T any](cmd *cobra.Command, op core.Operation) (T, string, error) {
	var zero T
	name, err := cmd.Flags().GetString("venue")
	if err != nil {
		return zero, "", err
	}
	if name == "" {
		return zero, "", fmt.Errorf("--venue is required")
	}
	ex, err := container.Get(name)
	if err != nil {
		return zero, name, err
	}
	impl, ok := ex.(T)
	if !ok {
		return zero, name, core.NewExchangeError(name, core.ErrorTypeNotAvailable, 0, op.String()+" is not supported")
	}
	return impl, name, nil
}

// historyOptions turns the --symbol, --since and --limit flags into fetch
// options. --since is a lookback window such as 24h.
func historyOptions(cmd *cobra.Command, now time.Time) ([]exchange.Option, error) {
	symbols, err := cmd.Flags().GetStringSlice("symbol")
	if err != nil {
		return nil, err
	}
	since, err := cmd.Flags().GetDuration("since")
	if err != nil {
		return nil, err
	}
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return nil, err
	}
	if since < 0 || limit < 0 {
		return nil, fmt.Errorf("--since and --limit must not be negative")
	}

	var opts []exchange.Option
	if len(symbols) > 0 {
		opts = append(opts, exchange.WithSymbols(symbols...))
	}
	if since > 0 {
		opts = append(opts, exchange.WithSince(now.Add(-since)))
	}
	if limit > 0 {
		opts = append(opts, exchange.WithLimit(limit))
	}
	return opts, nil
}

func withRetry[T any](ctx context.Context, op func(ctx context.Context) (T, error)) (T, error) {
	return exchange.RetryValue(ctx, exchange.DefaultRetryConfig(), op)
}

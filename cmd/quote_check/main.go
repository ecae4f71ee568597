// Package main provides a CLI that checks the quote and candle providers
// against live data for a list of symbols.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/stock-tracker/internal/adapter"
	"github.com/stock-tracker/internal/config"
	apperrors "github.com/stock-tracker/internal/errors"
	"github.com/stock-tracker/internal/format"
	"github.com/stock-tracker/internal/types"
	"github.com/stock-tracker/internal/valuation"
)

func main() {
	timeframe := flag.String("timeframe", string(types.DefaultTimeframe), "Chart timeframe: 1D, 1W, 1M, 3M, 1Y")
	noChart := flag.Bool("no-chart", false, "Skip the candle provider")
	flag.Parse()

	symbols := flag.Args()
	if len(symbols) == 0 {
		symbols = []string{"AAPL"}
	}
	for i, s := range symbols {
		symbols[i] = types.NormalizeSymbol(s)
	}

	tf, err := types.ParseTimeframe(*timeframe)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	if cfg.Quotes.APIKey == "" {
		fmt.Println("Error: ALPHA_VANTAGE_API_KEY not set")
		os.Exit(1)
	}

	quotes := adapter.NewAlphaVantageClient(cfg.Quotes)
	candles := adapter.NewFinnhubClient(cfg.Candles)

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	fmt.Printf("Fetching quotes for %s...\n\n", strings.Join(symbols, ", "))

	outcomes := valuation.Gather(ctx, quotes, symbols, valuation.GatherOptions{
		MaxConcurrent: cfg.Refresh.MaxConcurrentLookups,
		LookupTimeout: cfg.Refresh.LookupTimeout,
	})

	fmt.Printf("=== Quotes ===\n")
	failed := 0
	for _, o := range outcomes {
		if !o.OK() {
			failed++
			if o.Err == nil {
				fmt.Printf("%-8s | FAILED no usable price\n", o.Symbol)
				continue
			}
			fmt.Printf("%-8s | FAILED (%s) %v\n", o.Symbol, apperrors.LookupFailureKind(o.Err), o.Err)
			continue
		}
		q := o.Quote
		fmt.Printf("%-8s | %12s | %10s | %8s | as of %s\n",
			q.Symbol, format.Money(q.Price), format.SignedMoney(q.Change), format.SignedPercent(q.ChangePercent), q.AsOfDate)
	}
	fmt.Printf("\nSucceeded: %d  Failed: %d  Breaker: %s\n", len(outcomes)-failed, failed, quotes.BreakerState())

	if *noChart {
		return
	}
	if cfg.Candles.APIKey == "" {
		fmt.Println("\nSkipping candles: FINNHUB_API_KEY not set")
		return
	}

	resolution, from, to := tf.Window(time.Now())
	fmt.Printf("\n=== Candles (%s, resolution %s) ===\n", tf, resolution)
	for _, symbol := range symbols {
		bars, err := candles.GetCandles(ctx, symbol, resolution, from, to)
		if err != nil {
			fmt.Printf("%-8s | FAILED (%s) %v\n", symbol, apperrors.LookupFailureKind(err), err)
			continue
		}
		if len(bars) == 0 {
			fmt.Printf("%-8s | no data\n", symbol)
			continue
		}
		first, last := bars[0], bars[len(bars)-1]
		fmt.Printf("%-8s | %d bars | %s -> %s | close %s -> %s\n",
			symbol, len(bars),
			time.Unix(first.Timestamp, 0).UTC().Format("2006-01-02 15:04"),
			time.Unix(last.Timestamp, 0).UTC().Format("2006-01-02 15:04"),
			format.Money(first.Close), format.Money(last.Close))
	}
}

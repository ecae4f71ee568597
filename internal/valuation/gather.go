package valuation

import (
	"context"
	"time"

	apperrors "github.com/stock-tracker/internal/errors"
	"github.com/stock-tracker/internal/logging"
	"github.com/stock-tracker/internal/models"
	"golang.org/x/sync/errgroup"
)

// QuoteSource is the lookup Gather fans out over
type QuoteSource interface {
	GetQuote(ctx context.Context, symbol string) (*models.Quote, error)
}

// GatherOptions bounds the fan-out
type GatherOptions struct {
	MaxConcurrent int           // 0 means one goroutine per symbol
	LookupTimeout time.Duration // 0 means no per-lookup deadline
}

// Gather looks up every distinct symbol concurrently and waits for all lookups
// to settle. A failing lookup never cancels the others. The result has one
// outcome per input symbol in input order.
func Gather(ctx context.Context, src QuoteSource, symbols []string, opts GatherOptions) []Outcome {
	logger := logging.FromContext(ctx)

	// one lookup per distinct symbol
	index := make(map[string]int, len(symbols))
	distinct := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if _, ok := index[s]; !ok {
			index[s] = len(distinct)
			distinct = append(distinct, s)
		}
	}

	results := make([]Outcome, len(distinct))

	// goroutines always return nil so one failed lookup never stops the rest
	var g errgroup.Group
	if opts.MaxConcurrent > 0 {
		g.SetLimit(opts.MaxConcurrent)
	}

	for i, symbol := range distinct {
		g.Go(func() error {
			lookupCtx := ctx
			if opts.LookupTimeout > 0 {
				var cancel context.CancelFunc
				lookupCtx, cancel = context.WithTimeout(ctx, opts.LookupTimeout)
				defer cancel()
			}

			quote, err := src.GetQuote(lookupCtx, symbol)
			results[i] = Outcome{Symbol: symbol, Quote: quote, Err: err}

			if err != nil {
				logger.WithFields(map[string]interface{}{
					"symbol": symbol,
					"kind":   apperrors.LookupFailureKind(err),
				}).WithError(err).Warn("Quote lookup failed")
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]Outcome, len(symbols))
	for i, s := range symbols {
		out[i] = results[index[s]]
	}
	return out
}

// Failed returns the symbols whose lookup did not produce a price
func Failed(outcomes []Outcome) []string {
	var failed []string
	for _, o := range outcomes {
		if !o.OK() {
			failed = append(failed, o.Symbol)
		}
	}
	return failed
}

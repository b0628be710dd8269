package dataset

import (
	"context"
	"time"

	"github.com/YuminosukeSato/mlpipe/pkg/log"
)

// LoadOptions controls how CSV text is parsed.
type LoadOptions struct {
	// Header treats the first row as column names. Without it columns are
	// named "0", "1", ...
	Header bool

	// DynamicTyping turns numeric and true/false cells into numbers and bools.
	DynamicTyping bool

	// SkipEmptyLines drops rows whose fields are all empty (",,").
	// Blank lines never become records: encoding/csv skips them whether or
	// not this is set, so false only keeps the all-empty-field rows.
	SkipEmptyLines bool

	// Fetcher overrides how the source is read. Default: DefaultFetcher()
	Fetcher Fetcher
}

// DefaultLoadOptions enables header, dynamic typing and empty line skipping.
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{
		Header:         true,
		DynamicTyping:  true,
		SkipEmptyLines: true,
	}
}

// Load fetches source (http(s) URL, file:// URL or path) and parses it as
// CSV. It performs one read per call and caches nothing.
//
//	records, err := dataset.Load(ctx, "https://example.com/iris.csv", dataset.DefaultLoadOptions())
func Load(ctx context.Context, source string, opts LoadOptions) ([]Record, error) {
	logger := log.GetLoggerWithName("dataset").With(log.SourceKey, source)
	start := time.Now()

	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = DefaultFetcher()
	}

	text, err := fetcher.Fetch(ctx, source)
	if err != nil {
		return nil, err
	}

	records, err := Parse(text, opts)
	if err != nil {
		return nil, err
	}

	logger.Info("Dataset loaded",
		log.OperationKey, log.OperationLoad,
		log.PhaseKey, log.PhaseIngestion,
		log.SamplesKey, len(records),
		log.BytesKey, len(text),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return records, nil
}

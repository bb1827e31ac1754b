// Package observability provides logging and metrics support for the
// reference service.
//
// # Logging
//
// Create a logger from configuration:
//
//	logger := observability.NewLogger(observability.LoggingConfig{
//	    Level:  "info",
//	    Format: "json",
//	    Output: "stdout",
//	})
//
// Attach a run ID once and recover a logger anywhere below:
//
//	ctx = observability.WithRunID(ctx, runID.String())
//	log := observability.LoggerFromContext(ctx, logger)
//	plog := observability.WithPaper(log, paper)
//	plog.Info().Msg("downloaded")
//
// # Metrics
//
// One Metrics value observes every component:
//
//	metrics := observability.NewMetrics("refsvc")
//	client := papersources.NewHTTPClient(papersources.HTTPClientConfig{Observer: metrics})
//	resolver := oa.NewResolver(strategies, oa.WithObserver(metrics))
//
// # Standard Fields
//
//   - run_id: acquisition or verification run
//   - request_id: HTTP request
//   - component: emitting package (oa-resolver, pdf-downloader, ...)
//   - source: external API name
//   - service: set once on the root logger
//   - paper_id, doi: paper identity
//   - strategy: OA resolution strategy
package observability

// Package acquisition runs the reference acquisition pipeline.
//
// # Stages
//
// A run turns a search query (or an explicit list of papers) into stored
// papers with downloaded full text where possible:
//
//  1. Search every enabled source, merge results by DOI then title+year, and
//     store new papers as metadata_only.
//  2. Download papers that already carry a PDF URL in their metadata.
//  3. Resolve the rest through the open access cascade and download the hits.
//  4. Optionally retry the remainder through an institutional proxy.
//  5. Report what is still missing as a wishlist.
//
// Papers already downloaded by an earlier run are counted and skipped, so
// re-running a query never creates duplicates or downloads a file twice.
//
// # Failure Model
//
// A run only returns an error for invalid input or a cancelled context. Source
// failures, unresolvable papers and rejected downloads are ordinary outcomes
// recorded in the report.
//
// # Usage
//
//	p := acquisition.NewPipeline(acquisition.Config{DownloadDir: "data/pdfs"},
//	    acquisition.Deps{Search: registry, Store: repo, Resolver: resolver, Downloader: downloader},
//	    acquisition.WithLogger(logger))
//	report, err := p.Run(ctx, acquisition.Request{Query: "graph neural networks"})
package acquisition

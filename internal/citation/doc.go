// Package citation checks MLA-style inline citations in a manuscript against
// bibliographic metadata.
//
// Verification runs in three steps:
//
//  1. Parse finds citations such as (Felstiner 247), (Derrida, *Sovereignties* 42)
//     or (qtd. in Smith, *Theory* 42). Rules are applied in a fixed priority
//     order and never produce overlapping spans. Bare four-digit numbers in the
//     1800-2099 range are read as years, not pages.
//  2. Engine.VerifyAll looks each work up in CrossRef, falling back to
//     OpenAlex, and checks the cited pages against the matched work's page
//     range. Lookups are cached by author and title.
//  3. Annotate inserts a [VERIFY:...] marker after every citation that needs
//     review and builds the VerificationReport.
//
// Usage:
//
//	engine, err := citation.NewEngine(citation.Config{}, []papersources.WorkSearcher{crossrefClient, openalexClient},
//	    citation.WithLogger(logger),
//	    citation.WithObserver(metrics),
//	)
//	annotated, report, err := engine.Verify(ctx, manuscript)
package citation

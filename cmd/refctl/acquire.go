package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/helixir/reference-service/internal/acquisition"
	"github.com/helixir/reference-service/internal/domain"
)

var (
	acquireMaxResults int
	acquireYearFrom   int
	acquireYearTo     int
	acquireDOIs       []string
)

func init() {
	rootCmd.AddCommand(acquireCmd)
	acquireCmd.Flags().IntVar(&acquireMaxResults, "max-results", 0, "Results per source (default from config)")
	acquireCmd.Flags().IntVar(&acquireYearFrom, "year-from", 0, "Earliest publication year")
	acquireCmd.Flags().IntVar(&acquireYearTo, "year-to", 0, "Latest publication year")
	acquireCmd.Flags().StringSliceVar(&acquireDOIs, "doi", nil, "Acquire a known DOI (repeatable)")
}

var acquireCmd = &cobra.Command{
	Use:   "acquire [query]",
	Short: "Search sources and download every paper that can be found",
	Long: `Run the acquisition pipeline: search the enabled metadata sources, store
new papers, then download full texts directly, through the open access
cascade, and finally through the institutional proxy when configured.

Examples:
  refctl acquire "glacier mass balance"
  refctl acquire --doi 10.1038/nature12373 --doi 10.1126/science.1259855
  refctl acquire "sea ice" --year-from 2015 --human`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAcquire,
}

func runAcquire(cmd *cobra.Command, args []string) error {
	req := acquisition.Request{
		MaxResults: acquireMaxResults,
		YearFrom:   acquireYearFrom,
		YearTo:     acquireYearTo,
	}
	if len(args) == 1 {
		req.Query = strings.TrimSpace(args[0])
	}
	for _, doi := range acquireDOIs {
		if d := domain.NormalizeDOI(doi); d != "" {
			req.Papers = append(req.Papers, &domain.Paper{
				Identifiers: domain.Identifiers{domain.IdentifierTypeDOI: d},
			})
		}
	}
	if err := req.Validate(); err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	report, runErr := a.Pipeline.Run(ctx, req)
	if report == nil {
		return runErr
	}

	if humanOutput {
		printAcquisitionReport(report)
	} else if err := outputJSON(report); err != nil {
		return err
	}
	return runErr
}

func printAcquisitionReport(r *domain.AcquisitionReport) {
	fmt.Printf("Run %s (%s)\n", r.RunID, r.Duration().Round(time.Millisecond))
	fmt.Printf("  found:        %d (%d new, %d known, %d already acquired)\n",
		r.Found, r.NewPapers, r.AlreadyKnown, r.AlreadyAcquired)
	fmt.Printf("  downloaded:   %d (direct %d, open access %d, proxy %d)\n",
		r.Downloaded, r.DirectDownloaded, r.OAResolved, r.ProxyDownloaded)
	fmt.Printf("  indexed:      %d\n", r.Indexed)
	fmt.Printf("  failed:       %d\n", r.Failed)
	if len(r.Wishlist) == 0 {
		return
	}
	fmt.Println("\nStill missing:")
	for _, e := range r.Wishlist {
		label := e.Title
		if e.DOI != "" {
			label += " [" + e.DOI + "]"
		}
		fmt.Printf("  - %s (%s)\n", label, e.Reason)
	}
}

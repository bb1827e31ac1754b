package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/helixir/reference-service/internal/domain"
	"github.com/helixir/reference-service/internal/repository"
)

var (
	resolveDOI   string
	resolveTitle string
	resolveArXiv string
	resolvePMID  string
)

func init() {
	rootCmd.AddCommand(resolveCmd)
	resolveCmd.Flags().StringVar(&resolveDOI, "doi", "", "DOI of the paper")
	resolveCmd.Flags().StringVar(&resolveTitle, "title", "", "Title of the paper")
	resolveCmd.Flags().StringVar(&resolveArXiv, "arxiv", "", "arXiv identifier")
	resolveCmd.Flags().StringVar(&resolvePMID, "pmid", "", "PubMed identifier")
}

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Find an open access PDF location for one paper",
	Long: `Run the open access cascade for a single paper without downloading it.
A paper already in the store is resolved with every identifier it has.

Examples:
  refctl resolve --doi 10.1371/journal.pone.0000001
  refctl resolve --arxiv 2301.00001 --human`,
	Args: cobra.NoArgs,
	RunE: runResolve,
}

type resolveResult struct {
	Found    bool                     `json:"found"`
	Location *domain.ResolvedLocation `json:"location,omitempty"`
	PaperID  string                   `json:"paper_id,omitempty"`
}

func runResolve(cmd *cobra.Command, args []string) error {
	paper := &domain.Paper{Title: strings.TrimSpace(resolveTitle), Identifiers: domain.Identifiers{}}
	if doi := domain.NormalizeDOI(resolveDOI); doi != "" {
		paper.Identifiers[domain.IdentifierTypeDOI] = doi
	}
	if id := strings.TrimSpace(resolveArXiv); id != "" {
		paper.Identifiers[domain.IdentifierTypeArXivID] = id
	}
	if id := strings.TrimSpace(resolvePMID); id != "" {
		paper.Identifiers[domain.IdentifierTypePubMedID] = id
	}
	if paper.Title == "" && len(paper.Identifiers) == 0 {
		return errors.New("one of --doi, --title, --arxiv or --pmid is required")
	}

	ctx, cancel := commandContext()
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	stored, err := repository.FindMatch(ctx, a.Store, paper)
	if err != nil {
		return err
	}
	if stored != nil {
		paper = stored
	}

	result := resolveResult{Location: a.Resolver.Resolve(ctx, paper)}
	result.Found = result.Location != nil
	if stored != nil {
		result.PaperID = stored.ID.String()
		if result.Found {
			if _, err := a.Store.RecordAcquisition(ctx, stored.ID, repository.AcquisitionUpdate{
				PDFURL: result.Location.URL,
				Status: domain.StatusPDFURLKnown,
			}); err != nil {
				return err
			}
		}
	}

	if !humanOutput {
		return outputJSON(result)
	}
	if !result.Found {
		fmt.Println("No open access location found.")
		return nil
	}
	fmt.Printf("%s\n  via %s (%s)\n", result.Location.URL, result.Location.Strategy, result.Location.Source)
	if result.Location.Note != "" {
		fmt.Printf("  note: %s\n", result.Location.Note)
	}
	return nil
}

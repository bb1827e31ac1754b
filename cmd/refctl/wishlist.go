package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/helixir/reference-service/internal/acquisition"
)

var (
	wishlistFormat string
	wishlistOut    string
)

func init() {
	rootCmd.AddCommand(wishlistCmd)
	wishlistCmd.Flags().StringVar(&wishlistFormat, "format", acquisition.FormatYAML, "Output format: yaml or json")
	wishlistCmd.Flags().StringVarP(&wishlistOut, "out", "o", "", "Write to a file instead of stdout")
}

var wishlistCmd = &cobra.Command{
	Use:   "wishlist",
	Short: "Export papers whose full text is still missing",
	Long: `List every stored paper without a downloaded PDF, with the reason it is
missing, ready for interlibrary loan or manual retrieval.

Examples:
  refctl wishlist
  refctl wishlist --format json -o wishlist.json`,
	Args: cobra.NoArgs,
	RunE: runWishlist,
}

func runWishlist(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := acquisition.Wishlist(ctx, a.Store)
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if wishlistOut != "" {
		f, err := os.Create(wishlistOut)
		if err != nil {
			return fmt.Errorf("creating wishlist file: %w", err)
		}
		defer f.Close()
		w = f
	}
	if err := acquisition.WriteWishlist(w, entries, wishlistFormat); err != nil {
		return err
	}
	if wishlistOut != "" && humanOutput {
		fmt.Printf("%d papers written to %s\n", len(entries), wishlistOut)
	}
	return nil
}

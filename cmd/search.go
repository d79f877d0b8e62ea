package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/pizza-search/internal/model"
)

var (
	searchRadius              float64
	searchIncludeNonDedicated bool
)

var searchCmd = &cobra.Command{
	Use:   "search <zipcode>",
	Short: "Run one search and print the result as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Engine.Search(cmd.Context(), model.SearchRequest{
			Zipcode:             args[0],
			RadiusMiles:         searchRadius,
			IncludeNonDedicated: &searchIncludeNonDedicated,
		})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	searchCmd.Flags().Float64Var(&searchRadius, "radius", 0, "search radius in miles (default from config)")
	searchCmd.Flags().BoolVar(&searchIncludeNonDedicated, "include-non-dedicated", true, "include restaurants that only carry a pizza menu")
	rootCmd.AddCommand(searchCmd)
}

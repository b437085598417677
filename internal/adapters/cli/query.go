package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"dietinsights/internal/dataset"
	"dietinsights/internal/query"
	"dietinsights/pkg/domain"
)

func newInsightsCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "insights",
		Short: "Show mean macronutrients per diet",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, _ []string, a *app) error {
			res, err := a.svc.Insights(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"elapsed_seconds": res.Elapsed.Seconds(),
					"cache_path":      res.Path,
					"diet_insights":   res.View.Insights,
				})
			}
			rows := make([][]string, 0, len(res.View.Insights))
			for _, in := range res.View.Insights {
				rows = append(rows, []string{in.DietType, grams(in.Protein), grams(in.Carbs), grams(in.Fat), strconv.Itoa(in.Count)})
			}
			out := cmd.OutOrStdout()
			renderTable(out, []string{"Diet", domain.ColumnProtein, domain.ColumnCarbs, domain.ColumnFat, "Recipes"}, rows)
			note(out, fmt.Sprintf("served via %s in %s", res.Path, res.Elapsed))
			return nil
		}),
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newSearchCmd(opts *rootOptions) *cobra.Command {
	var (
		p      query.Params
		format string
	)
	cmd := &cobra.Command{
		Use:   "search [keyword]",
		Short: "Search recipes by diet and keyword",
		Args:  cobra.MaximumNArgs(1),
		RunE: withApp(opts, func(cmd *cobra.Command, args []string, a *app) error {
			if len(args) == 1 {
				p.Keyword = args[0]
			}
			if p.PageSize == 0 {
				p.PageSize = a.cfg.Server.DefaultPageSize
			}
			res, err := a.svc.Search(cmd.Context(), p)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch format {
			case "json":
				return writeJSON(out, res.Result)
			case "csv":
				var extra []string
				if len(res.Columns) > len(domain.RequiredColumns) {
					extra = res.Columns[len(domain.RequiredColumns):]
				}
				return dataset.WriteCSV(out, domain.Dataset{ExtraColumns: extra, Records: res.Records})
			case "table":
			default:
				return fmt.Errorf("unknown format %q (table, json, csv)", format)
			}
			rows := make([][]string, 0, len(res.Records))
			for _, r := range res.Records {
				rows = append(rows, []string{r.DietType, r.RecipeName, r.CuisineType, grams(r.ProteinG), grams(r.CarbsG), grams(r.FatG)})
			}
			renderTable(out, []string{"Diet", "Recipe", "Cuisine", "Protein", "Carbs", "Fat"}, rows)
			pg := res.Pagination
			note(out, fmt.Sprintf("page %d of %d (%d matches)", pg.Page, pg.TotalPages, pg.Total))
			return nil
		}),
	}
	cmd.Flags().StringVarP(&p.Diet, "diet", "d", domain.DietAll, "diet filter (All for every diet)")
	cmd.Flags().IntVarP(&p.Page, "page", "p", 1, "page number")
	cmd.Flags().IntVarP(&p.PageSize, "page-size", "n", 0, "results per page (defaults to server.default_page_size)")
	cmd.Flags().StringVar(&format, "format", "table", "output format: table, json or csv")
	return cmd
}

func newHighlightsCmd(opts *rootOptions) *cobra.Command {
	var (
		top    int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "highlights",
		Short: "Show top protein recipes, common cuisines and macro ratios per diet",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, _ []string, a *app) error {
			res, err := a.svc.Highlights(cmd.Context(), top)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, res.Highlights)
			}
			rows := make([][]string, 0, len(res.Diets))
			for _, d := range res.Diets {
				best := ""
				if len(d.TopProtein) > 0 {
					best = fmt.Sprintf("%s (%sg)", d.TopProtein[0].RecipeName, grams(d.TopProtein[0].ProteinG))
				}
				rows = append(rows, []string{d.DietType, strconv.Itoa(d.Recipes), best, d.CommonCuisine, grams(d.ProteinCarbsRatio), grams(d.CarbsFatRatio)})
			}
			renderTable(out, []string{"Diet", "Recipes", "Top protein", "Common cuisine", "P:C", "C:F"}, rows)
			if res.TopProteinDiet != "" {
				note(out, fmt.Sprintf("highest mean protein: %s (%sg)", res.TopProteinDiet, grams(res.TopProteinDietAverage)))
			}
			return nil
		}),
	}
	cmd.Flags().IntVarP(&top, "top", "n", 5, "recipes listed per diet")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

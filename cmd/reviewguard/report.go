package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ReviewGuard/internal/infrastructure/storage"
)

func newReportCommand(ctx *commandContext) *cobra.Command {
	var (
		query   storage.ReportQuery
		path    string
		summary bool
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "List outcomes recorded by previous scans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if path == "" {
				path = cfg.Report.Path
			}
			if path == "" {
				return fmt.Errorf("no report file: set report.path or pass --file")
			}

			store, err := storage.OpenReadOnly(path)
			if err != nil {
				return err
			}
			defer store.Close()

			if summary {
				counts, err := store.Summary(cmd.Context())
				if err != nil {
					return err
				}
				return emit(cmd, counts,
					[]string{"Category", "Count"},
					[]columnAlignment{alignLeft, alignRight},
					func(c storage.CategoryCount) []string {
						return []string{string(c.Displayed), fmt.Sprint(c.Count)}
					})
			}

			entries, err := store.List(cmd.Context(), query)
			if err != nil {
				return err
			}
			return emit(cmd, entries,
				[]string{"When", "Platform", "ID", "Category", "Confidence", "Text"},
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				func(e storage.ReportEntry) []string {
					return []string{
						e.ClassifiedAt.Local().Format("2006-01-02 15:04:05"),
						e.Platform,
						e.UnitID,
						string(e.Displayed),
						percent(e.Confidence),
						shorten(e.Snippet, snippetWidth),
					}
				})
		},
	}

	cmd.Flags().StringVarP(&path, "file", "f", "", "Report database; defaults to report.path")
	cmd.Flags().Uint64VarP(&query.Limit, "limit", "n", 50, "Maximum rows; 0 lists everything")
	cmd.Flags().StringVarP(&query.Platform, "platform", "p", "", "Only show this platform")
	cmd.Flags().BoolVar(&query.FlaggedOnly, "flagged", false, "Only show FAKE, SUSPICIOUS and BOT verdicts")
	cmd.Flags().BoolVar(&summary, "summary", false, "Count outcomes per category instead of listing them")
	return cmd
}

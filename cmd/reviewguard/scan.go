package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"ReviewGuard/internal/app"
	"ReviewGuard/internal/domain"
)

type outcomeView struct {
	ID             string                 `json:"id"`
	Platform       string                 `json:"platform"`
	Label          domain.Label           `json:"label"`
	Confidence     float64                `json:"confidence"`
	Displayed      domain.DisplayCategory `json:"displayed"`
	OriginVerified bool                   `json:"originVerified"`
	Text           string                 `json:"text"`
	ClassifiedAt   time.Time              `json:"classifiedAt"`
}

func outcomeViews(outcomes []domain.Outcome) []outcomeView {
	views := make([]outcomeView, 0, len(outcomes))
	for _, o := range outcomes {
		views = append(views, outcomeView{
			ID:             o.Unit.ID,
			Platform:       o.Unit.Platform,
			Label:          o.Result.Label,
			Confidence:     o.Result.Confidence,
			Displayed:      o.Displayed,
			OriginVerified: o.Unit.OriginVerified,
			Text:           o.Unit.RawText,
			ClassifiedAt:   o.ClassifiedAt,
		})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].ID < views[j].ID })
	return views
}

func newScanCommand(ctx *commandContext) *cobra.Command {
	var platform string
	var outPath string

	cmd := &cobra.Command{
		Use:   "scan <url-or-file>",
		Short: "Run one scan cycle over a page and print the verdicts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			application, err := app.New(cmd.Context(), cfg, app.Options{Source: args[0], Platform: platform}, ctx.logger())
			if err != nil {
				return err
			}
			defer application.Close()

			report, err := application.Scan(cmd.Context())
			if err != nil {
				return err
			}
			if outPath != "" {
				if err := application.WriteDocument(outPath); err != nil {
					return err
				}
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "located %d, rejected %d, classified %d in %d batch(es)\n",
				report.Located, report.Rejected, report.Acquired, len(report.Groups))

			return emit(cmd, outcomeViews(report.Outcomes),
				[]string{"ID", "Category", "Confidence", "Verified", "Text"},
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				func(v outcomeView) []string {
					return []string{v.ID, string(v.Displayed), percent(v.Confidence), yesNo(v.OriginVerified), shorten(v.Text, snippetWidth)}
				})
		},
	}

	cmd.Flags().StringVarP(&platform, "platform", "p", "", "Platform adapter (amazon, youtube, twitter); inferred from the URL host when empty")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Write the annotated page to this file")
	return cmd
}

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var platform string
	var addr string

	cmd := &cobra.Command{
		Use:   "watch <url-or-file>",
		Short: "Keep a page live: re-fetch on schedule, scan new content, serve the HTTP API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			application, err := app.New(cmd.Context(), cfg, app.Options{Source: args[0], Platform: platform}, ctx.logger())
			if err != nil {
				return err
			}
			defer application.Close()
			return application.Watch(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&platform, "platform", "p", "", "Platform adapter; inferred from the URL host when empty")
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP API listen address; empty disables the API")
	return cmd
}

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"ReviewGuard/internal/annotate"
	"ReviewGuard/internal/app"
	"ReviewGuard/internal/domain"
	"ReviewGuard/internal/infrastructure/parser"
	"ReviewGuard/internal/locator"
	"ReviewGuard/internal/ports"
)

type classifyView struct {
	Platform    string                 `json:"platform"`
	Label       domain.Label           `json:"label"`
	Confidence  float64                `json:"confidence"`
	Displayed   domain.DisplayCategory `json:"displayed"`
	Badge       string                 `json:"badge"`
	Explanation string                 `json:"explanation,omitempty"`
}

func newClassifyCommand(ctx *commandContext) *cobra.Command {
	var platform string
	var explain bool
	var verified bool

	cmd := &cobra.Command{
		Use:   "classify [text]",
		Short: "Classify a single piece of text (reads stdin when no text is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger := ctx.logger()

			text, err := classifyInput(cmd, args)
			if err != nil {
				return err
			}

			loc, err := parser.DefaultRegistry().Resolve(platform)
			if err != nil {
				return err
			}

			classifier := app.NewClassifier(cfg, logger)
			result := classifier.Classify(cmd.Context(), loc.Endpoint(), text)
			ann := domain.Annotation{
				DisplayedCategory: domain.DisplayFor(result, verified),
				ConfidenceShown:   annotate.ShownConfidence(result.Confidence),
				Label:             result.Label,
				Confidence:        result.Confidence,
			}
			view := classifyView{
				Platform:   loc.Name(),
				Label:      result.Label,
				Confidence: result.Confidence,
				Displayed:  ann.DisplayedCategory,
				Badge:      annotate.BadgeText(ann),
			}

			if explain && ann.Explainable() {
				explainer, err := app.NewExplainer(cfg, classifier, logger)
				if err != nil {
					return err
				}
				reason, err := explainer.Explain(cmd.Context(), ports.ExplainRequest{
					Text:       text,
					Label:      string(result.Label),
					Confidence: result.Confidence,
				})
				if err != nil {
					return fmt.Errorf("explanation failed: %w", err)
				}
				view.Explanation = reason
			}

			return emit(cmd, []classifyView{view},
				[]string{"Platform", "Verdict", "Explanation"},
				nil,
				func(v classifyView) []string { return []string{v.Platform, v.Badge, v.Explanation} })
		},
	}

	cmd.Flags().StringVarP(&platform, "platform", "p", "amazon", "Platform whose classifier endpoint to use")
	cmd.Flags().BoolVar(&explain, "explain", false, "Also ask why the verdict was reached")
	cmd.Flags().BoolVar(&verified, "verified", false, "Treat the text as coming from a verified origin")
	return cmd
}

func classifyInput(cmd *cobra.Command, args []string) (string, error) {
	raw := ""
	if len(args) == 1 {
		raw = args[0]
	} else {
		data, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), 1<<20))
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		raw = string(data)
	}
	text := locator.NormalizeText(raw)
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("nothing to classify")
	}
	return text, nil
}

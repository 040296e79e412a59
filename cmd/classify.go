package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/arvinsingh/fictech-harvester/internal/classifier"
	"github.com/arvinsingh/fictech-harvester/internal/model"
	"github.com/arvinsingh/fictech-harvester/internal/wiki"
)

// pageReport is the classify command's per-title output.
type pageReport struct {
	Title         string                      `json:"title"`
	URL           string                      `json:"url,omitempty"`
	ContentLength int                         `json:"content_length,omitempty"`
	Result        *model.ClassificationResult `json:"result,omitempty"`
	Error         string                      `json:"error,omitempty"`
}

var classifyCmd = &cobra.Command{
	Use:   "classify <title>...",
	Short: "Fetch and classify specific pages without crawling",
	Long:  "Fetches the named pages directly and prints each classification verdict as JSON. Useful for tuning rules against known pages.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		rules, err := classifier.LoadRules(cfg.Classifier.RulesFile)
		if err != nil {
			return err
		}
		cls, err := classifier.New(rules, cfg.Classifier)
		if err != nil {
			return err
		}

		client := wiki.NewClient(cfg.Wiki)
		reports, err := classifyPages(ctx, client, cls, args, cfg.Harvest.MaxWorkers)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	},
}

// classifyPages fetches and classifies each title concurrently, preserving
// input order in the output. Missing pages become per-title errors rather
// than failing the whole batch.
func classifyPages(ctx context.Context, api wiki.API, cls *classifier.Classifier, titles []string, limit int) ([]pageReport, error) {
	if limit < 1 {
		limit = 1
	}

	reports := make([]pageReport, len(titles))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, title := range titles {
		i, title := i, title
		g.Go(func() error {
			page, err := api.FetchPageContent(ctx, title)
			if err != nil {
				if eris.Is(err, wiki.ErrNotFound) {
					reports[i] = pageReport{Title: title, Error: "page not found"}
					return nil
				}
				return eris.Wrapf(err, "fetch %q", title)
			}

			res := cls.Classify(page.Text)
			reports[i] = pageReport{
				Title:         page.Title,
				URL:           page.URL,
				ContentLength: len(page.Text),
				Result:        &res,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

func init() {
	rootCmd.AddCommand(classifyCmd)
}

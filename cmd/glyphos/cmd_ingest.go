package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"glyphos/pkg/ingest"
)

// newIngestCmd creates the "glyphos ingest" subcommand.
func newIngestCmd(flags *globalFlags) *cobra.Command {
	var (
		source   string
		corpus   string
		sourceID string
		watch    string
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Promote candidate glyphs into the lexicon",
		Long: "Ingest one candidate file (--source), extract candidates from a free-text\n" +
			"corpus (--corpus, with --source-id defaulting to the file name), or watch an\n" +
			"inbox directory for candidate files (--watch) until interrupted.\n" +
			"Every path is idempotent: rerunning the same input changes nothing.",
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			set := 0
			for _, v := range []string{source, corpus, watch} {
				if v != "" {
					set++
				}
			}
			if set != 1 {
				return usageError("exactly one of --source, --corpus or --watch is required")
			}

			a, err := loadApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.close()

			ctx := ctxOf(cmd)
			out := cmd.OutOrStdout()
			in := a.ingester()

			switch {
			case source != "":
				f, err := ingest.LoadCandidateFile(source)
				if err != nil {
					return err
				}
				rep, err := in.IngestCandidates(ctx, f.SourceID, f.Items)
				fmt.Fprint(out, formatIngestReport(rep))
				if err != nil {
					return fmt.Errorf("ingest: %w", err)
				}

			case corpus != "":
				data, err := os.ReadFile(corpus) //nolint:gosec // operator-supplied path
				if err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
				if sourceID == "" {
					sourceID = "corpus:" + strings.TrimSuffix(filepath.Base(corpus), filepath.Ext(corpus))
				}
				rep, err := in.IngestCorpus(ctx, sourceID, ingest.SplitChunks(string(data)))
				fmt.Fprint(out, formatIngestReport(rep))
				if err != nil {
					return fmt.Errorf("ingest: %w", err)
				}

			default:
				fmt.Fprintf(out, "watching %s (Ctrl-C to stop)\n", watch)
				w := ingest.NewWatcher(in, watch, func(r ingest.FileResult) {
					if r.Err != nil {
						fmt.Fprintf(out, "%s: %v\n", filepath.Base(r.Path), r.Err)
						return
					}
					fmt.Fprintf(out, "%s: %s", filepath.Base(r.Path), formatIngestReport(r.Report))
				})
				if err := w.Run(ctx); err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
				a.log.Info("inbox watcher stopped", zap.String("dir", watch))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "candidate JSON file")
	cmd.Flags().StringVar(&corpus, "corpus", "", "free-text corpus file")
	cmd.Flags().StringVar(&sourceID, "source-id", "", "source id for --corpus")
	cmd.Flags().StringVar(&watch, "watch", "", "inbox directory to watch for candidate files")
	return cmd
}

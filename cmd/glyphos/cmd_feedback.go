package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"glyphos/pkg/feedback"
	"glyphos/pkg/protocol"
)

// newFeedbackCmd creates the "glyphos feedback" command group.
func newFeedbackCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feedback",
		Short: "Record, export and promote user feedback",
	}
	cmd.AddCommand(
		newFeedbackRecordCmd(flags),
		newFeedbackExportCmd(flags),
		newFeedbackPromoteCmd(flags),
	)
	return cmd
}

func newFeedbackRecordCmd(flags *globalFlags) *cobra.Command {
	var (
		conversation string
		turn         int
		rating       int
		correction   string
	)

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Append a rating and/or correction to the feedback log",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			changed := cmd.Flags().Changed
			req := protocol.FeedbackRequest{ConversationID: conversation}
			if changed("turn") {
				req.TurnIndex = &turn
			}
			if changed("rating") {
				req.Rating = &rating
			}
			if changed("correction") {
				req.CorrectionText = &correction
			}
			if req.Rating == nil && req.CorrectionText == nil {
				return usageError("one of --rating or --correction is required")
			}

			a, err := loadApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.close()

			if _, err := a.service().Feedback(ctxOf(cmd), req); err != nil {
				return fmt.Errorf("feedback: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Feedback recorded.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&conversation, "conversation", "c", "", "conversation id")
	cmd.Flags().IntVar(&turn, "turn", 0, "turn index the feedback refers to")
	cmd.Flags().IntVar(&rating, "rating", 0, "rating 1-5")
	cmd.Flags().StringVar(&correction, "correction", "", "corrected reply text")
	return cmd
}

//nolint:gochecknoglobals // static CSV header
var pairHeader = []string{
	"feedback_id", "conversation_id", "turn_index", "user_input", "bot_output",
	"glyph_id", "rating", "corrected_output", "match",
}

// writePairsCSV writes training pairs as CSV with a header row.
func writePairsCSV(w io.Writer, pairs []feedback.TrainingPair) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(pairHeader); err != nil {
		return err
	}
	for _, p := range pairs {
		var glyph, rating, corrected string
		if p.GlyphID != nil {
			glyph = strconv.FormatInt(*p.GlyphID, 10)
		}
		if p.Rating != nil {
			rating = strconv.Itoa(*p.Rating)
		}
		if p.CorrectedOutput != nil {
			corrected = *p.CorrectedOutput
		}
		if err := cw.Write([]string{
			strconv.FormatInt(p.FeedbackID, 10), p.ConversationID, strconv.Itoa(p.TurnIndex),
			p.UserInput, p.BotOutput, glyph, rating, corrected, string(p.Match),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// writePairsJSONL writes one training pair per line.
func writePairsJSONL(w io.Writer, pairs []feedback.TrainingPair) error {
	enc := json.NewEncoder(w)
	for _, p := range pairs {
		if err := enc.Encode(p); err != nil {
			return err
		}
	}
	return nil
}

func newFeedbackExportCmd(flags *globalFlags) *cobra.Command {
	var (
		format string
		out    string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export feedback joined to conversation turns as training pairs",
		Long: "Join every feedback entry to the turn it reacts to (same turn, else the\n" +
			"latest earlier turn of the conversation, else the latest earlier turn\n" +
			"overall) and write the pairs as JSON lines or CSV.",
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			var write func(io.Writer, []feedback.TrainingPair) error
			switch format {
			case "jsonl":
				write = writePairsJSONL
			case "csv":
				write = writePairsCSV
			default:
				return usageError(fmt.Sprintf("unknown format %q (jsonl, csv)", format))
			}

			a, err := loadApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.close()

			pairs, err := a.feedback.Pairs(ctxOf(cmd))
			if err != nil {
				return fmt.Errorf("feedback export: %w", err)
			}

			if out == "" || out == "-" {
				return write(cmd.OutOrStdout(), pairs)
			}
			f, err := os.Create(out) //nolint:gosec // operator-supplied path
			if err != nil {
				return fmt.Errorf("feedback export: %w", err)
			}
			if err := write(f, pairs); err != nil {
				_ = f.Close()
				return fmt.Errorf("feedback export: %w", err)
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("feedback export: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d pairs to %s\n", len(pairs), out)
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "jsonl", "output format: jsonl or csv")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	return cmd
}

func newFeedbackPromoteCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "promote",
		Short: "Feed highly rated turns and corrections back into the lexicon",
		Long: "Enrich the glyphs of well-rated turns with the affect words of the user's\n" +
			"message and extract candidates from corrections. Each feedback entry is\n" +
			"promoted at most once.",
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.close()

			ctx := ctxOf(cmd)
			pairs, err := a.feedback.Pairs(ctx)
			if err != nil {
				return fmt.Errorf("feedback promote: %w", err)
			}
			rep, err := a.ingester().PromoteFeedback(ctx, pairs)
			fmt.Fprint(cmd.OutOrStdout(), formatIngestReport(rep))
			if err != nil {
				return fmt.Errorf("feedback promote: %w", err)
			}
			return nil
		},
	}
}

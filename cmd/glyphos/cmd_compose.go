package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"glyphos/pkg/protocol"
)

// newComposeCmd creates the "glyphos compose" subcommand.
func newComposeCmd(flags *globalFlags) *cobra.Command {
	var (
		conversation string
		turn         int
		glyph        string
		asJSON       bool
	)

	cmd := &cobra.Command{
		Use:   "compose <message>...",
		Short: "Compose a grounded reply for one conversation turn",
		Long: "Retrieve the best glyph for the message (or use --glyph) and compose a reply.\n" +
			"The turn is recorded in the conversation log; --turn defaults to the next\n" +
			"index of the conversation.",
		Args: minArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(conversation) == "" {
				return usageError("--conversation is required")
			}

			a, err := loadApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.close()

			ctx := ctxOf(cmd)
			if !cmd.Flags().Changed("turn") {
				last, err := a.feedback.LastTurnIndex(ctx, conversation)
				if err != nil {
					return fmt.Errorf("compose: %w", err)
				}
				turn = last + 1
			}

			req := protocol.ComposeRequest{
				Message:        strings.Join(args, " "),
				ConversationID: conversation,
				TurnIndex:      turn,
			}
			if glyph != "" {
				req.GlyphID = &glyph
			}

			resp, err := a.service().Compose(ctx, req)
			if err != nil {
				return fmt.Errorf("compose: %w", err)
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), resp)
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Reply)
			return nil
		},
	}

	cmd.Flags().StringVarP(&conversation, "conversation", "c", "", "conversation id")
	cmd.Flags().IntVar(&turn, "turn", 0, "turn index (default: next in the conversation)")
	cmd.Flags().StringVar(&glyph, "glyph", "", "compose from this glyph id instead of retrieving")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the response JSON")
	return cmd
}

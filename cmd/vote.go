package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/codekeep/codekeep/internal/model"
)

var voteCmd = &cobra.Command{
	Use:   "vote <pattern-id>",
	Short: "Vote a pattern up or down",
	Long: `Cast a vote on a pattern. One live vote per voter per pattern: repeating
the same direction is rejected, switching direction moves the counters.
Vote weight follows the voter's reputation, clamped to [0.5, 2.0].

Examples:
  vote a1b2c3d4e5f60708 --up
  vote a1b2c3d4e5f60708 --down --voter reviewer-2`,
	Args: cobra.ExactArgs(1),
	RunE: runVote,
}

func init() {
	f := voteCmd.Flags()
	f.Bool("up", false, "vote up")
	f.Bool("down", false, "vote down")
	f.String("voter", "", "voter id (default: configured actor)")

	rootCmd.AddCommand(voteCmd)
}

func runVote(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	up, _ := cmd.Flags().GetBool("up")
	down, _ := cmd.Flags().GetBool("down")
	voter, _ := cmd.Flags().GetString("voter")

	if up == down {
		return eris.New("vote: exactly one of --up or --down is required")
	}
	direction := model.VoteUp
	if down {
		direction = model.VoteDown
	}
	if voter == "" {
		voter = cfg.Actor
	}

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	p, err := st.Vote(ctx, args[0], voter, direction)
	if err != nil {
		if eris.Is(err, model.ErrDuplicateVote) {
			return eris.Wrapf(err, "vote: %s already voted this way", voter)
		}
		return eris.Wrap(err, "vote")
	}

	fmt.Printf("Votes: +%d / -%d (weighted %.2f)\n", p.Upvotes, p.Downvotes, p.WeightedVoteScore)
	return nil
}

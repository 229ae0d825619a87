package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/aaas-network/aaas/internal/app/escrow"
	"github.com/aaas-network/aaas/internal/domain"
)

// ─── Challenge CLI ──────────────────────────────────────────────────────────
// Direct access to the local store for operators and scripting. Every
// state-changing command runs as the identity passed with --as.

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(challengeCmd)
	challengeCmd.AddCommand(challengeCreateCmd)
	challengeCmd.AddCommand(challengeListCmd)
	challengeCmd.AddCommand(challengeShowCmd)
	rootCmd.AddCommand(joinCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(voteCmd)
	rootCmd.AddCommand(progressCmd)
	rootCmd.AddCommand(claimCmd)
	rootCmd.AddCommand(profileCmd)

	challengeCreateCmd.Flags().StringP("file", "f", "", "Path to challenge YAML definition")
	joinCmd.Flags().String("name", "", "Display name")
	joinCmd.Flags().String("note", "", "Note shown to other participants")
	verifyCmd.Flags().Uint64("score", 0, "Measured score")
	verifyCmd.Flags().Bool("completed", false, "Mark the goal as completed")
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the registry with --as as owner",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, err := caller(cmd)
		if err != nil {
			return err
		}
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.engine.InitializeRegistry(cmd.Context(), owner); err != nil {
			return err
		}
		out(cmd, "Registry initialized. Owner: %s\n", owner)
		return nil
	},
}

// ─── challenge ──────────────────────────────────────────────────────────────

var challengeCmd = &cobra.Command{
	Use:   "challenge",
	Short: "Create and inspect challenges",
}

var challengeCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a challenge from a YAML definition",
	Long: `Create a challenge from a YAML definition:

  id: 1
  name: 10k steps
  goal:
    kind: AUTOMATED_METRIC   # or COMMUNITY_REVIEWED
    metric: steps
    threshold: 10000
  start_time: 1767225600     # unix seconds
  end_time: 1767830400
  stake_per_participant: 5000000
  is_private: false
  allow_list: []`,
	Args: cobra.NoArgs,
	RunE: runChallengeCreate,
}

func runChallengeCreate(cmd *cobra.Command, args []string) error {
	creator, err := caller(cmd)
	if err != nil {
		return err
	}
	path, _ := cmd.Flags().GetString("file")
	if path == "" {
		return fmt.Errorf("challenge YAML file required: aaas challenge create -f <file>")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read challenge file: %w", err)
	}
	var p escrow.ChallengeParams
	if err := yaml.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("parse challenge file: %w", err)
	}
	p.Creator = creator

	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	c, err := s.engine.CreateChallenge(cmd.Context(), p)
	if err != nil {
		return err
	}
	out(cmd, "Challenge %d %q created.\n", c.ID, c.Name)
	out(cmd, "  Treasury: %s\n", c.Treasury)
	out(cmd, "  Creator:  %s\n", c.CreatedBy)
	out(cmd, "  Stake:    %s\n", domain.FormatAmount(c.StakePerParticipant, s.cfg.Token.Decimals))
	return nil
}

var challengeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List challenges",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		list, err := s.engine.Challenges(cmd.Context())
		if err != nil {
			return err
		}
		if len(list) == 0 {
			out(cmd, "No challenges.\n")
			return nil
		}
		now := s.engine.Now()
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tGOAL\tPHASE\tMEMBERS\tPOOLED")
		for i := range list {
			c := &list[i]
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\n", c.ID, c.Name, goalLabel(c.Goal), c.Phase(now),
				c.ParticipantCount, domain.FormatAmount(c.PooledStake, s.cfg.Token.Decimals))
		}
		return tw.Flush()
	},
}

var challengeShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show a challenge and its members",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		c, err := s.engine.Challenge(cmd.Context(), id)
		if err != nil {
			return err
		}
		members, err := s.engine.Members(cmd.Context(), id)
		if err != nil {
			return err
		}
		dec := s.cfg.Token.Decimals
		out(cmd, "Challenge %d: %s\n", c.ID, c.Name)
		if c.Description != "" {
			out(cmd, "  %s\n", c.Description)
		}
		out(cmd, "  Goal:      %s\n", goalLabel(c.Goal))
		if c.CreatedBy != "" {
			out(cmd, "  Creator:   %s\n", c.CreatedBy)
		}
		out(cmd, "  Phase:     %s\n", c.Phase(s.engine.Now()))
		out(cmd, "  Start:     %s\n", formatTime(c.StartTime))
		out(cmd, "  End:       %s\n", formatTime(c.EndTime))
		out(cmd, "  Claims:    from %s\n", formatTime(c.VerificationDeadline()))
		out(cmd, "  Stake:     %s\n", domain.FormatAmount(c.StakePerParticipant, dec))
		out(cmd, "  Pooled:    %s (%d members)\n", domain.FormatAmount(c.PooledStake, dec), c.ParticipantCount)
		if c.IsPrivate {
			out(cmd, "  Allowed:   %s\n", strings.Join(c.AllowList, ", "))
		}
		if len(members) == 0 {
			return nil
		}
		out(cmd, "\n")
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "PARTICIPANT\tDEPOSITED\tCOMPLETED\tSCORE\tFOR\tAGAINST")
		for _, m := range members {
			fmt.Fprintf(tw, "%s\t%s\t%t\t%d\t%d\t%d\n", m.Participant, domain.FormatAmount(m.Deposited, dec),
				m.Completed, m.Score, m.VotesFor, m.VotesAgainst)
		}
		return tw.Flush()
	},
}

// ─── join / verify / vote / claim ───────────────────────────────────────────

var joinCmd = &cobra.Command{
	Use:   "join ID",
	Short: "Join a challenge as --as and stake",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		participant, err := caller(cmd)
		if err != nil {
			return err
		}
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		name, _ := cmd.Flags().GetString("name")
		note, _ := cmd.Flags().GetString("note")

		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		m, err := s.engine.Join(cmd.Context(), id, participant, name, note)
		if err != nil {
			return err
		}
		out(cmd, "Joined challenge %d. Staked %s.\n", id, domain.FormatAmount(m.Deposited, s.cfg.Token.Decimals))
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify ID PARTICIPANT",
	Short: "Submit an automated-metric result (registry owner only)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		operator, err := caller(cmd)
		if err != nil {
			return err
		}
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		score, _ := cmd.Flags().GetUint64("score")
		completed, _ := cmd.Flags().GetBool("completed")

		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		m, err := s.engine.RecordVerification(cmd.Context(), operator, id, args[1], domain.MetricVerification(score, completed))
		if err != nil {
			return err
		}
		out(cmd, "Recorded %s on challenge %d: completed=%t score=%d\n", m.Participant, id, m.Completed, m.Score)
		return nil
	},
}

var voteCmd = &cobra.Command{
	Use:   "vote ID MEMBER for|against",
	Short: "Vote on another member of a community-reviewed challenge",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		voter, err := caller(cmd)
		if err != nil {
			return err
		}
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		choice, err := escrow.ParseChoice(args[2])
		if err != nil {
			return err
		}

		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		m, err := s.engine.CastVote(cmd.Context(), id, args[1], voter, choice)
		if err != nil {
			return err
		}
		out(cmd, "Vote recorded. %s: %d for, %d against.\n", m.Participant, m.VotesFor, m.VotesAgainst)
		return nil
	},
}

var progressCmd = &cobra.Command{
	Use:   "progress ID",
	Short: "Show how many members --as has voted on",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		voter, err := caller(cmd)
		if err != nil {
			return err
		}
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		p, err := s.engine.VotingProgress(cmd.Context(), id, voter)
		if err != nil {
			return err
		}
		out(cmd, "Voted on %d of %d members (complete=%t).\n", p.Cast, p.Eligible, p.Complete)
		return nil
	},
}

var claimCmd = &cobra.Command{
	Use:   "claim ID",
	Short: "Claim the stake refund for --as",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		participant, err := caller(cmd)
		if err != nil {
			return err
		}
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		refund, err := s.engine.Claim(cmd.Context(), id, participant)
		if err != nil {
			return err
		}
		out(cmd, "Refunded %s to %s.\n", domain.FormatAmount(refund, s.cfg.Token.Decimals), domain.WalletAddress(participant))
		return nil
	},
}

var profileCmd = &cobra.Command{
	Use:   "profile PARTICIPANT",
	Short: "Show a participant's totals across challenges",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		p, err := s.engine.Profile(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if p == nil {
			return fmt.Errorf("no profile for %q", args[0])
		}
		dec := s.cfg.Token.Decimals
		out(cmd, "%s (%s)\n", p.Participant, p.DisplayName)
		out(cmd, "  Joined:    %d\n", p.TotalJoined)
		out(cmd, "  Deposited: %s\n", domain.FormatAmount(p.TotalDeposited, dec))
		out(cmd, "  Withdrawn: %s\n", domain.FormatAmount(p.TotalWithdrawn, dec))
		return nil
	},
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func parseID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid challenge id %q", s)
	}
	return id, nil
}

func goalLabel(g domain.Goal) string {
	if g.Kind == domain.GoalAutomatedMetric {
		return fmt.Sprintf("%s >= %d", g.Metric, g.Threshold)
	}
	return "community vote"
}

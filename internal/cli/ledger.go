package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/aaas-network/aaas/internal/domain"
)

// ─── Ledger CLI ─────────────────────────────────────────────────────────────
// ACCOUNT is a full ledger address (wallet:alice, treasury:1) or a bare
// participant id, which means that participant's wallet.

func init() {
	rootCmd.AddCommand(ledgerCmd)
	ledgerCmd.AddCommand(ledgerDepositCmd)
	ledgerCmd.AddCommand(ledgerBalanceCmd)
	ledgerCmd.AddCommand(ledgerEntriesCmd)

	ledgerEntriesCmd.Flags().IntP("limit", "n", 20, "Number of entries to show")
}

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Fund and inspect custody accounts",
}

var ledgerDepositCmd = &cobra.Command{
	Use:   "deposit ACCOUNT AMOUNT",
	Short: "Fund an account (registry owner only)",
	Args:  cobra.ExactArgs(2),
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

		amount, err := domain.ParseAmount(args[1], s.cfg.Token.Decimals)
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", args[1], err)
		}
		account := resolveAccount(args[0])
		if err := s.engine.Deposit(cmd.Context(), owner, account, amount); err != nil {
			return err
		}
		bal, err := s.engine.Balance(cmd.Context(), account)
		if err != nil {
			return err
		}
		out(cmd, "Deposited %s to %s. Balance: %s\n", args[1], account, domain.FormatAmount(bal, s.cfg.Token.Decimals))
		return nil
	},
}

var ledgerBalanceCmd = &cobra.Command{
	Use:   "balance ACCOUNT",
	Short: "Show an account balance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		account := resolveAccount(args[0])
		bal, err := s.engine.Balance(cmd.Context(), account)
		if err != nil {
			return err
		}
		out(cmd, "%s: %s\n", account, domain.FormatAmount(bal, s.cfg.Token.Decimals))
		return nil
	},
}

var ledgerEntriesCmd = &cobra.Command{
	Use:   "entries ACCOUNT",
	Short: "Show recent ledger entries for an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		account := resolveAccount(args[0])
		entries, err := s.db.Entries(cmd.Context(), account, limit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			out(cmd, "No entries for %s.\n", account)
			return nil
		}
		dec := s.cfg.Token.Decimals
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TIME\tTYPE\tSIDE\tAMOUNT\tBALANCE\tDESCRIPTION")
		for _, e := range entries {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", e.Timestamp.UTC().Format(time.RFC3339), e.Type, e.EntryType,
				domain.FormatAmount(e.Amount, dec), domain.FormatAmount(e.Balance, dec), e.Description)
		}
		return tw.Flush()
	},
}

func resolveAccount(s string) string {
	if strings.Contains(s, ":") {
		return s
	}
	return domain.WalletAddress(s)
}

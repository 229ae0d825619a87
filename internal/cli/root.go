// Package cli implements the aaas command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/aaas-network/aaas/internal/app/escrow"
	"github.com/aaas-network/aaas/internal/daemon"
	"github.com/aaas-network/aaas/internal/infra/sqlite"
)

// Version is set at build time.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "aaas",
	Short: "Staked challenge escrow and verification engine",
	Long: `aaas holds participant stakes for time-bounded challenges, adjudicates
completion after each challenge ends (an operator-submitted score or peer
votes), and refunds participants who passed once the verification window
closes.

Commands that change state act as the identity given with --as.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       Version,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.aaas/config.toml)")
	rootCmd.PersistentFlags().String("as", "", "Caller identity for state-changing commands")
	rootCmd.PersistentFlags().Int64("now", 0, "Override the engine clock (unix seconds)")
	rootCmd.PersistentFlags().MarkHidden("now")
}

// Execute runs the root command.
func Execute() error {
	return ExecuteContext(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
}

// ExecuteContext runs the root command with explicit args and streams.
func ExecuteContext(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	return rootCmd.ExecuteContext(ctx)
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func loadConfig(cmd *cobra.Command) (daemon.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = daemon.DefaultPath()
	}
	return daemon.Load(path)
}

func caller(cmd *cobra.Command) (string, error) {
	id, _ := cmd.Flags().GetString("as")
	if id == "" {
		return "", fmt.Errorf("caller identity required: pass --as <identity>")
	}
	return id, nil
}

// session is an engine opened directly on the local store.
type session struct {
	cfg    daemon.Config
	db     *sqlite.DB
	engine *escrow.Engine
}

func (s *session) Close() error { return s.db.Close() }

func openSession(cmd *cobra.Command) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	dir, err := cfg.Storage.DataDir()
	if err != nil {
		return nil, err
	}
	db, err := sqlite.Open(dir, cfg.Token.Decimals)
	if err != nil {
		return nil, err
	}

	opts := []escrow.Option{
		escrow.WithDecimals(cfg.Token.Decimals),
		escrow.WithLogger(daemon.NewLogger(cfg.Log, cmd.ErrOrStderr())),
	}
	if now, _ := cmd.Flags().GetInt64("now"); now > 0 {
		opts = append(opts, escrow.WithClock(func() time.Time { return time.Unix(now, 0) }))
	}
	return &session{cfg: cfg, db: db, engine: escrow.New(db, opts...)}, nil
}

func out(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}

func formatTime(unix int64) string {
	return time.Unix(unix, 0).UTC().Format(time.RFC3339)
}

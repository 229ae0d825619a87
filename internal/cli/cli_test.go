package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aaas-network/aaas/internal/domain"
)

const t0 = int64(1_700_000_000)

type testCLI struct {
	t   *testing.T
	dir string
	cfg string
}

func newTestCLI(t *testing.T) *testCLI {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("AAAS_STORAGE_DIR", filepath.Join(dir, "data"))
	t.Setenv("AAAS_LOG_LEVEL", "error")
	return &testCLI{t: t, dir: dir, cfg: filepath.Join(dir, "config.toml")}
}

// run executes one command. Persistent flags are always passed explicitly
// because cobra keeps flag values between executions.
func (c *testCLI) run(as string, now int64, args ...string) (string, error) {
	c.t.Helper()
	full := append([]string{"--config=" + c.cfg, "--as=" + as, fmt.Sprintf("--now=%d", now)}, args...)
	var stdout, stderr bytes.Buffer
	err := ExecuteContext(context.Background(), full, &stdout, &stderr)
	return stdout.String(), err
}

func (c *testCLI) mustRun(as string, now int64, args ...string) string {
	c.t.Helper()
	out, err := c.run(as, now, args...)
	if err != nil {
		c.t.Fatalf("aaas %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func (c *testCLI) writeChallenge(body string) string {
	c.t.Helper()
	path := filepath.Join(c.dir, "challenge.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		c.t.Fatal(err)
	}
	return path
}

func TestCLI_CommunityLifecycle(t *testing.T) {
	c := newTestCLI(t)

	if out := c.mustRun("owner", t0, "init"); !strings.Contains(out, "Owner: owner") {
		t.Errorf("init output = %q", out)
	}
	path := c.writeChallenge(fmt.Sprintf(`
id: 1
name: journaling
goal:
  kind: COMMUNITY_REVIEWED
start_time: %d
end_time: %d
stake_per_participant: 5000000
`, t0+10, t0+20))
	if out := c.mustRun("owner", t0, "challenge", "create", "-f", path); !strings.Contains(out, "treasury:1") || !strings.Contains(out, "Creator:  owner") {
		t.Errorf("create output = %q", out)
	}

	for _, p := range []string{"alice", "bob"} {
		c.mustRun("owner", t0, "ledger", "deposit", p, "5")
		out := c.mustRun(p, t0, "join", "1", "--name", strings.ToUpper(p))
		if !strings.Contains(out, "Staked 5.") {
			t.Errorf("join output = %q", out)
		}
	}

	list := c.mustRun("", t0, "challenge", "list")
	if !strings.Contains(list, "journaling") || !strings.Contains(list, "community vote") || !strings.Contains(list, "OPEN") {
		t.Errorf("list output = %q", list)
	}

	vote := c.mustRun("alice", t0+30, "vote", "1", "bob", "against")
	if !strings.Contains(vote, "0 for, 1 against") {
		t.Errorf("vote output = %q", vote)
	}
	if out := c.mustRun("alice", t0+30, "progress", "1"); !strings.Contains(out, "1 of 1") {
		t.Errorf("progress output = %q", out)
	}
	if _, err := c.run("alice", t0+30, "claim", "1"); err == nil {
		t.Error("claim during verification should fail")
	}

	deadline := t0 + 20 + domain.VerificationWindow
	if out := c.mustRun("alice", deadline, "claim", "1"); !strings.Contains(out, "Refunded 5 to wallet:alice") {
		t.Errorf("claim output = %q", out)
	}
	if _, err := c.run("bob", deadline, "claim", "1"); err == nil {
		t.Error("bob was voted down; claim should fail")
	}

	show := c.mustRun("", deadline, "challenge", "show", "1")
	if !strings.Contains(show, "SETTLING") || !strings.Contains(show, "bob") || !strings.Contains(show, "Creator:   owner") {
		t.Errorf("show output = %q", show)
	}
	if out := c.mustRun("", deadline, "ledger", "balance", "alice"); !strings.Contains(out, "wallet:alice: 5") {
		t.Errorf("balance output = %q", out)
	}
	if out := c.mustRun("", deadline, "ledger", "balance", "treasury:1"); !strings.Contains(out, "treasury:1: 5") {
		t.Errorf("treasury output = %q", out)
	}
	entries := c.mustRun("", deadline, "ledger", "entries", "alice")
	for _, want := range []string{"DEPOSIT", "STAKE", "REFUND"} {
		if !strings.Contains(entries, want) {
			t.Errorf("entries missing %s: %q", want, entries)
		}
	}
	profile := c.mustRun("", deadline, "profile", "alice")
	if !strings.Contains(profile, "alice (ALICE)") || !strings.Contains(profile, "Withdrawn: 5") {
		t.Errorf("profile output = %q", profile)
	}
}

func TestCLI_AutomatedVerify(t *testing.T) {
	c := newTestCLI(t)
	c.mustRun("owner", t0, "init")
	path := c.writeChallenge(fmt.Sprintf(`
id: 7
name: steps
goal: {kind: AUTOMATED_METRIC, metric: steps, threshold: 10000}
start_time: %d
end_time: %d
stake_per_participant: 1000000
`, t0+10, t0+20))
	c.mustRun("owner", t0, "challenge", "create", "--file", path)
	c.mustRun("owner", t0, "ledger", "deposit", "alice", "1")
	c.mustRun("alice", t0, "join", "7")

	if _, err := c.run("alice", t0+25, "verify", "7", "alice", "--score", "12000", "--completed"); err == nil {
		t.Error("verify by non-owner should fail")
	}
	out := c.mustRun("owner", t0+25, "verify", "7", "alice", "--score", "12000", "--completed")
	if !strings.Contains(out, "completed=true score=12000") {
		t.Errorf("verify output = %q", out)
	}
}

func TestCLI_Errors(t *testing.T) {
	c := newTestCLI(t)

	tests := []struct {
		name string
		as   string
		args []string
	}{
		{"init without identity", "", []string{"init"}},
		{"create without file", "owner", []string{"challenge", "create", "--file="}},
		{"create missing file", "owner", []string{"challenge", "create", "-f", "/nonexistent.yaml"}},
		{"bad id", "", []string{"challenge", "show", "x"}},
		{"unknown challenge", "", []string{"challenge", "show", "9"}},
		{"bad vote choice", "alice", []string{"vote", "1", "bob", "maybe"}},
		{"bad amount", "owner", []string{"ledger", "deposit", "alice", "abc"}},
		{"no profile", "", []string{"profile", "ghost"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := c.run(tt.as, t0, tt.args...); err == nil {
				t.Errorf("aaas %s should fail", strings.Join(tt.args, " "))
			}
		})
	}
}

func TestCLI_Config(t *testing.T) {
	c := newTestCLI(t)
	if err := os.WriteFile(c.cfg, []byte("[api]\nport = 9999\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	out := c.mustRun("", 0, "config")
	if !strings.Contains(out, "[api]") || !strings.Contains(out, "port = 9999") {
		t.Errorf("config output = %q", out)
	}
}

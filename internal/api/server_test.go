package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aaas-network/aaas/internal/app/escrow"
	"github.com/aaas-network/aaas/internal/app/oracle"
	"github.com/aaas-network/aaas/internal/domain"
	"github.com/aaas-network/aaas/internal/infra/sqlite"
)

const (
	owner = "owner"
	t0    = int64(1_700_000_000)
)

type testAPI struct {
	t       *testing.T
	handler http.Handler
	engine  *escrow.Engine
	hub     *EventHub
	mu      sync.Mutex
	now     int64
}

func (a *testAPI) clock() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return time.Unix(a.now, 0)
}

func (a *testAPI) setNow(now int64) {
	a.mu.Lock()
	a.now = now
	a.mu.Unlock()
}

type fakeOracle struct{}

func (fakeOracle) Stats() oracle.Stats { return oracle.Stats{Sweeps: 3, Submitted: 2} }

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	db, err := sqlite.Open(t.TempDir(), 6)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a := &testAPI{t: t, now: t0, hub: NewEventHub()}
	a.engine = escrow.New(db,
		escrow.WithClock(a.clock),
		escrow.WithLogger(logger),
		escrow.WithEventSink(a.hub.Publish),
	)

	srv := NewServer(a.engine, logger)
	srv.EnableMetrics()
	srv.SetLedger(db)
	srv.SetOracle(fakeOracle{})
	srv.SetEventHub(a.hub)
	a.handler = srv.Handler()
	return a
}

// do sends a request as caller (empty for anonymous) and decodes the JSON
// response into out when non-nil.
func (a *testAPI) do(method, path, caller string, body any, out any) int {
	a.t.Helper()
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			a.t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, rd)
	if caller != "" {
		req.Header.Set(IdentityHeader, caller)
	}
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)
	if out != nil {
		if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
			a.t.Fatalf("%s %s: decode %q: %v", method, path, w.Body.String(), err)
		}
	}
	return w.Code
}

func (a *testAPI) mustDo(method, path, caller string, body any, want int) {
	a.t.Helper()
	var resp map[string]any
	if code := a.do(method, path, caller, body, &resp); code != want {
		a.t.Fatalf("%s %s = %d, want %d (%v)", method, path, code, want, resp)
	}
}

// setup initializes the registry, creates challenge 1 and funds and joins
// alice and bob.
func (a *testAPI) setup(goal domain.Goal) {
	a.t.Helper()
	a.mustDo(http.MethodPost, "/v1/registry", owner, nil, http.StatusCreated)
	a.mustDo(http.MethodPost, "/v1/challenges", owner, escrow.ChallengeParams{
		ID: 1, Goal: goal, Name: "walk",
		StartTime: t0 + 10, EndTime: t0 + 20, StakePerParticipant: 2_000_000,
	}, http.StatusCreated)
	for _, p := range []string{"alice", "bob"} {
		a.mustDo(http.MethodPost, "/v1/accounts/"+p+"/deposit", owner, map[string]string{"amount": "2"}, http.StatusOK)
		a.mustDo(http.MethodPost, "/v1/challenges/1/join", p, map[string]string{"display_name": strings.ToUpper(p)}, http.StatusCreated)
	}
}

// ─── Status Mapping ─────────────────────────────────────────────────────────

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrUnauthorizedOwner, http.StatusForbidden},
		{domain.ErrSelfVote, http.StatusForbidden},
		{domain.ErrAlreadyClaimed, http.StatusConflict},
		{domain.ErrUnderVerification, http.StatusConflict},
		{domain.ErrInvalidSchedule, http.StatusBadRequest},
		{domain.ErrNotCompleted, http.StatusUnprocessableEntity},
		{domain.ErrChallengeNotFound, http.StatusNotFound},
		{domain.ErrInsufficientFunds, http.StatusPaymentRequired},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(domain.CategoryOf(tt.err)); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

// ─── Routes ─────────────────────────────────────────────────────────────────

func TestHealth(t *testing.T) {
	a := newTestAPI(t)
	var resp map[string]any
	if code := a.do(http.MethodGet, "/health", "", nil, &resp); code != http.StatusOK {
		t.Fatalf("GET /health = %d", code)
	}
	if resp["status"] != "ok" || resp["now"] != float64(t0) {
		t.Errorf("health = %v", resp)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	a := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /metrics = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "aaas_") {
		t.Error("metrics output missing aaas_ namespace")
	}
}

func TestRegistry(t *testing.T) {
	a := newTestAPI(t)
	a.mustDo(http.MethodGet, "/v1/registry", "", nil, http.StatusConflict)
	a.mustDo(http.MethodPost, "/v1/registry", "", nil, http.StatusUnauthorized)

	var reg domain.Registry
	if code := a.do(http.MethodPost, "/v1/registry", owner, nil, &reg); code != http.StatusCreated {
		t.Fatalf("POST /v1/registry = %d", code)
	}
	if reg.Owner != owner || reg.InitializedAt != t0 {
		t.Errorf("registry = %+v", reg)
	}
	a.mustDo(http.MethodPost, "/v1/registry", "mallory", nil, http.StatusConflict)
	a.mustDo(http.MethodGet, "/v1/registry", "", nil, http.StatusOK)
}

func TestCreateAndGetChallenge(t *testing.T) {
	a := newTestAPI(t)
	a.setup(domain.AutomatedGoal("steps", 10000))

	var view map[string]any
	if code := a.do(http.MethodGet, "/v1/challenges/1", "", nil, &view); code != http.StatusOK {
		t.Fatalf("GET challenge = %d", code)
	}
	if view["phase"] != "OPEN" {
		t.Errorf("phase = %v, want OPEN", view["phase"])
	}
	if view["participant_count"] != float64(2) || view["pooled_stake"] != float64(4_000_000) {
		t.Errorf("counters = %v / %v", view["participant_count"], view["pooled_stake"])
	}
	if view["verification_deadline"] != float64(t0+20+domain.VerificationWindow) {
		t.Errorf("verification_deadline = %v", view["verification_deadline"])
	}
	if view["created_by"] != owner {
		t.Errorf("created_by = %v, want %s", view["created_by"], owner)
	}

	var list struct {
		Challenges []map[string]any `json:"challenges"`
	}
	a.do(http.MethodGet, "/v1/challenges", "", nil, &list)
	if len(list.Challenges) != 1 {
		t.Errorf("challenges = %d, want 1", len(list.Challenges))
	}

	a.mustDo(http.MethodGet, "/v1/challenges/9", "", nil, http.StatusNotFound)
	a.mustDo(http.MethodGet, "/v1/challenges/abc", "", nil, http.StatusBadRequest)
	a.mustDo(http.MethodGet, "/v1/challenges/9223372036854775808", "", nil, http.StatusNotFound)
	a.mustDo(http.MethodPost, "/v1/challenges/9223372036854775808/join", "alice", nil, http.StatusNotFound)
}

func TestCreateChallenge_Rejections(t *testing.T) {
	a := newTestAPI(t)
	a.mustDo(http.MethodPost, "/v1/registry", owner, nil, http.StatusCreated)

	bad := escrow.ChallengeParams{ID: 1, Goal: domain.CommunityGoal(), Name: "x", StartTime: t0 - 1, EndTime: t0 + 5, StakePerParticipant: 1}
	a.mustDo(http.MethodPost, "/v1/challenges", owner, bad, http.StatusBadRequest)
	a.mustDo(http.MethodPost, "/v1/challenges", owner, map[string]any{"bogus": true}, http.StatusBadRequest)
	a.mustDo(http.MethodPost, "/v1/challenges", "", bad, http.StatusUnauthorized)

	huge := escrow.ChallengeParams{ID: 1, Goal: domain.CommunityGoal(), Name: "x", StartTime: t0 + 10, EndTime: t0 + 20, StakePerParticipant: 1 << 63}
	a.mustDo(http.MethodPost, "/v1/challenges", owner, huge, http.StatusBadRequest)
	huge.StakePerParticipant, huge.ID = 1, 1<<63
	a.mustDo(http.MethodPost, "/v1/challenges", owner, huge, http.StatusBadRequest)
	a.mustDo(http.MethodPost, "/v1/challenges", owner, map[string]any{"creator": "mallory"}, http.StatusBadRequest)
}

func TestJoin_Rejections(t *testing.T) {
	a := newTestAPI(t)
	a.setup(domain.CommunityGoal())

	a.mustDo(http.MethodPost, "/v1/challenges/1/join", "alice", nil, http.StatusConflict)
	a.mustDo(http.MethodPost, "/v1/challenges/1/join", "carol", nil, http.StatusPaymentRequired)

	var member domain.Membership
	if code := a.do(http.MethodGet, "/v1/challenges/1/members/alice", "", nil, &member); code != http.StatusOK {
		t.Fatalf("GET member = %d", code)
	}
	if !member.Joined || member.Deposited != 2_000_000 {
		t.Errorf("member = %+v", member)
	}
	a.mustDo(http.MethodGet, "/v1/challenges/1/members/carol", "", nil, http.StatusNotFound)

	var profile domain.Profile
	a.do(http.MethodGet, "/v1/profiles/alice", "", nil, &profile)
	if profile.DisplayName != "ALICE" || profile.TotalJoined != 1 {
		t.Errorf("profile = %+v", profile)
	}
	a.mustDo(http.MethodGet, "/v1/profiles/nobody", "", nil, http.StatusNotFound)
}

func TestAutomatedFlow(t *testing.T) {
	a := newTestAPI(t)
	a.setup(domain.AutomatedGoal("steps", 10000))

	verify := map[string]any{"participant": "alice", "score": 12000, "is_completed": true}
	a.mustDo(http.MethodPost, "/v1/challenges/1/verifications", owner, verify, http.StatusConflict) // not ended

	a.setNow(t0 + 25)
	a.mustDo(http.MethodPost, "/v1/challenges/1/verifications", "alice", verify, http.StatusForbidden)
	a.mustDo(http.MethodPost, "/v1/challenges/1/verifications", owner, verify, http.StatusOK)
	a.mustDo(http.MethodPost, "/v1/challenges/1/verifications", owner,
		map[string]any{"participant": "bob", "kind": domain.GoalCommunityReviewed, "is_completed": true},
		http.StatusBadRequest)
	a.mustDo(http.MethodPost, "/v1/challenges/1/claim", "alice", nil, http.StatusConflict) // under verification

	a.setNow(t0 + 20 + domain.VerificationWindow)
	var claim map[string]any
	if code := a.do(http.MethodPost, "/v1/challenges/1/claim", "alice", nil, &claim); code != http.StatusOK {
		t.Fatalf("claim = %d (%v)", code, claim)
	}
	if claim["refunded"] != float64(2_000_000) || claim["amount"] != "2" {
		t.Errorf("claim = %v", claim)
	}
	a.mustDo(http.MethodPost, "/v1/challenges/1/claim", "alice", nil, http.StatusConflict)

	var bal map[string]any
	a.do(http.MethodGet, "/v1/accounts/alice", "", nil, &bal)
	if bal["account"] != domain.WalletAddress("alice") || bal["balance"] != float64(2_000_000) {
		t.Errorf("alice balance = %v", bal)
	}

	var entries struct {
		Entries []domain.LedgerEntry `json:"entries"`
	}
	a.do(http.MethodGet, "/v1/accounts/alice/entries?limit=10", "", nil, &entries)
	if len(entries.Entries) != 3 {
		t.Fatalf("entries = %d, want 3 (deposit, stake, refund)", len(entries.Entries))
	}
	if entries.Entries[0].Type != domain.TxRefund {
		t.Errorf("newest entry = %s, want REFUND", entries.Entries[0].Type)
	}
	a.mustDo(http.MethodGet, "/v1/accounts/alice/entries?limit=-1", "", nil, http.StatusBadRequest)
}

func TestCommunityFlow(t *testing.T) {
	a := newTestAPI(t)
	a.setup(domain.CommunityGoal())
	a.setNow(t0 + 30)

	a.mustDo(http.MethodPost, "/v1/challenges/1/votes", "alice", map[string]any{"member": "alice", "choice": true}, http.StatusForbidden)
	a.mustDo(http.MethodPost, "/v1/challenges/1/votes", "alice", map[string]any{"member": "bob"}, http.StatusBadRequest)
	a.mustDo(http.MethodPost, "/v1/challenges/1/votes", "alice", map[string]any{"member": "bob", "choice": false}, http.StatusOK)
	a.mustDo(http.MethodPost, "/v1/challenges/1/votes", "alice", map[string]any{"member": "bob", "choice": true}, http.StatusConflict)

	var progress domain.VotingProgress
	a.do(http.MethodGet, "/v1/challenges/1/voters/alice/progress", "", nil, &progress)
	if progress.Eligible != 1 || progress.Cast != 1 || !progress.Complete {
		t.Errorf("progress = %+v", progress)
	}

	a.setNow(t0 + 20 + domain.VerificationWindow)
	a.mustDo(http.MethodPost, "/v1/challenges/1/claim", "bob", nil, http.StatusUnprocessableEntity)
	a.mustDo(http.MethodPost, "/v1/challenges/1/claim", "alice", nil, http.StatusOK)
	a.mustDo(http.MethodPost, "/v1/challenges/1/claim", "carol", nil, http.StatusUnprocessableEntity)

	var members struct {
		Members []domain.Membership `json:"members"`
	}
	a.do(http.MethodGet, "/v1/challenges/1/members", "", nil, &members)
	if len(members.Members) != 2 {
		t.Errorf("members = %d, want 2", len(members.Members))
	}
}

func TestDeposit_Rejections(t *testing.T) {
	a := newTestAPI(t)
	a.mustDo(http.MethodPost, "/v1/registry", owner, nil, http.StatusCreated)

	a.mustDo(http.MethodPost, "/v1/accounts/alice/deposit", "alice", map[string]string{"amount": "1"}, http.StatusForbidden)
	a.mustDo(http.MethodPost, "/v1/accounts/alice/deposit", owner, map[string]string{"amount": "0"}, http.StatusBadRequest)
	a.mustDo(http.MethodPost, "/v1/accounts/alice/deposit", owner, map[string]string{"amount": "0.0000001"}, http.StatusBadRequest)
	a.mustDo(http.MethodPost, "/v1/accounts/alice/deposit", owner, map[string]string{"amount": "abc"}, http.StatusBadRequest)
	a.mustDo(http.MethodPost, "/v1/accounts/alice/deposit", owner, map[string]string{"amount": "9223372036854.775808"}, http.StatusBadRequest)

	var bal map[string]any
	if code := a.do(http.MethodPost, "/v1/accounts/wallet:alice/deposit", owner, map[string]string{"amount": "1.25"}, &bal); code != http.StatusOK {
		t.Fatalf("deposit = %d (%v)", code, bal)
	}
	if bal["amount"] != "1.25" {
		t.Errorf("amount = %v, want 1.25", bal["amount"])
	}
}

func TestOracleRoute(t *testing.T) {
	a := newTestAPI(t)
	var stats oracle.Stats
	if code := a.do(http.MethodGet, "/v1/oracle", "", nil, &stats); code != http.StatusOK {
		t.Fatalf("GET /v1/oracle = %d", code)
	}
	if stats.Sweeps != 3 || stats.Submitted != 2 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestOptionalRoutesAbsent(t *testing.T) {
	db, err := sqlite.Open(t.TempDir(), 6)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	h := NewServer(escrow.New(db), nil).Handler()

	for _, path := range []string{"/metrics", "/v1/oracle", "/v1/events", "/v1/accounts/alice/entries"} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusNotFound && w.Code != http.StatusMethodNotAllowed {
			t.Errorf("GET %s = %d, want 404", path, w.Code)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	a := newTestAPI(t)
	req := httptest.NewRequest(http.MethodOptions, "/v1/challenges", nil)
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("OPTIONS = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Header().Get("Access-Control-Allow-Headers"), IdentityHeader) {
		t.Errorf("allow headers = %q", w.Header().Get("Access-Control-Allow-Headers"))
	}
}

// ─── Event Feed ─────────────────────────────────────────────────────────────

func TestEventHub_PublishAndSubscribe(t *testing.T) {
	hub := NewEventHub()

	ch, unsub := hub.Subscribe()
	defer unsub()
	if hub.ClientCount() != 1 {
		t.Errorf("ClientCount() = %d, want 1", hub.ClientCount())
	}

	hub.Publish(domain.Event{ID: "e1", Type: domain.EventJoined, ChallengeID: 4, Amount: 100})

	select {
	case data := <-ch:
		var got domain.Event
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.Type != domain.EventJoined || got.ChallengeID != 4 || got.Amount != 100 {
			t.Errorf("event = %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for publish")
	}
}

func TestEventHub_SlowClientDrops(t *testing.T) {
	hub := NewEventHub()
	_, unsub := hub.Subscribe()
	defer unsub()

	for i := 0; i < 40; i++ {
		hub.Publish(domain.Event{Type: domain.EventVoted})
	}
	if got := hub.Dropped(); got != 8 {
		t.Errorf("Dropped() = %d, want 8", got)
	}
}

func TestEventHub_Unsubscribe(t *testing.T) {
	hub := NewEventHub()
	_, unsub := hub.Subscribe()
	unsub()
	unsub()
	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d after unsub, want 0", hub.ClientCount())
	}
	hub.Publish(domain.Event{Type: domain.EventClaimed})
}

func TestEventsSSE_StreamsEngineEvents(t *testing.T) {
	a := newTestAPI(t)
	server := httptest.NewServer(a.handler)
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/v1/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	if err := a.engine.InitializeRegistry(context.Background(), owner); err != nil {
		t.Fatal(err)
	}
	if err := a.engine.Deposit(context.Background(), owner, domain.WalletAddress("alice"), 7); err != nil {
		t.Fatal(err)
	}

	lines := make(chan string, 8)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	var sawEvent, sawData bool
	deadline := time.After(2 * time.Second)
	for !(sawEvent && sawData) {
		select {
		case line, ok := <-lines:
			if !ok {
				t.Fatal("stream closed early")
			}
			if line == "event: deposited" {
				sawEvent = true
			}
			if strings.HasPrefix(line, "data: ") && strings.Contains(line, `"amount":7`) {
				sawData = true
			}
		case <-deadline:
			t.Fatalf("timeout: event=%v data=%v", sawEvent, sawData)
		}
	}
}

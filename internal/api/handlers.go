package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/aaas-network/aaas/internal/app/escrow"
	"github.com/aaas-network/aaas/internal/domain"
)

// ─── Request Helpers ────────────────────────────────────────────────────────

func identity(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(IdentityHeader))
}

// requireIdentity writes 401 and returns false when the header is missing.
func requireIdentity(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := identity(r)
	if id == "" {
		writeError(w, http.StatusUnauthorized, string(domain.CategoryAuthorization), "missing "+IdentityHeader+" header")
		return "", false
	}
	return id, true
}

func challengeID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, string(domain.CategoryValidation), "invalid challenge id")
		return 0, false
	}
	return id, true
}

// decodeBody decodes a JSON body. An empty body leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && err != io.EOF {
		writeError(w, http.StatusBadRequest, string(domain.CategoryValidation), "invalid request body: "+err.Error())
		return false
	}
	return true
}

// accountParam resolves the {account} path segment. A bare participant id
// means that participant's wallet.
func accountParam(r *http.Request) string {
	account := chi.URLParam(r, "account")
	if !strings.Contains(account, ":") {
		return domain.WalletAddress(account)
	}
	return account
}

// ─── Registry ───────────────────────────────────────────────────────────────

// GET /v1/registry
func (s *Server) handleGetRegistry(w http.ResponseWriter, r *http.Request) {
	reg, err := s.engine.Registry(r.Context())
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	if reg == nil {
		s.writeEngineError(w, r, domain.ErrRegistryNotInitialized)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

// POST /v1/registry: the caller becomes the owner.
func (s *Server) handleInitializeRegistry(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if err := s.engine.InitializeRegistry(r.Context(), caller); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	reg, err := s.engine.Registry(r.Context())
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, reg)
}

// ─── Challenges ─────────────────────────────────────────────────────────────

type challengeView struct {
	*domain.Challenge
	Phase                string `json:"phase"`
	VerificationDeadline int64  `json:"verification_deadline"`
}

func (s *Server) view(c *domain.Challenge) challengeView {
	return challengeView{
		Challenge:            c,
		Phase:                c.Phase(s.engine.Now()),
		VerificationDeadline: c.VerificationDeadline(),
	}
}

// GET /v1/challenges
func (s *Server) handleListChallenges(w http.ResponseWriter, r *http.Request) {
	list, err := s.engine.Challenges(r.Context())
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	out := make([]challengeView, 0, len(list))
	for i := range list {
		out = append(out, s.view(&list[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"challenges": out})
}

// POST /v1/challenges: the caller is recorded as the creator.
func (s *Server) handleCreateChallenge(w http.ResponseWriter, r *http.Request) {
	creator, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var p escrow.ChallengeParams
	if !decodeBody(w, r, &p) {
		return
	}
	p.Creator = creator
	c, err := s.engine.CreateChallenge(r.Context(), p)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.view(c))
}

// GET /v1/challenges/{id}
func (s *Server) handleGetChallenge(w http.ResponseWriter, r *http.Request) {
	id, ok := challengeID(w, r)
	if !ok {
		return
	}
	c, err := s.engine.Challenge(r.Context(), id)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.view(c))
}

// ─── Membership ─────────────────────────────────────────────────────────────

type joinRequest struct {
	DisplayName string `json:"display_name"`
	Note        string `json:"note"`
}

// POST /v1/challenges/{id}/join: the caller joins and stakes.
func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	participant, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	id, ok := challengeID(w, r)
	if !ok {
		return
	}
	var req joinRequest
	if !decodeBody(w, r, &req) {
		return
	}
	m, err := s.engine.Join(r.Context(), id, participant, req.DisplayName, req.Note)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// GET /v1/challenges/{id}/members
func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	id, ok := challengeID(w, r)
	if !ok {
		return
	}
	list, err := s.engine.Members(r.Context(), id)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	if list == nil {
		list = []domain.Membership{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": list})
}

// GET /v1/challenges/{id}/members/{participant}
func (s *Server) handleGetMember(w http.ResponseWriter, r *http.Request) {
	id, ok := challengeID(w, r)
	if !ok {
		return
	}
	m, err := s.engine.Membership(r.Context(), id, chi.URLParam(r, "participant"))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	if m == nil {
		writeError(w, http.StatusNotFound, string(domain.CategoryNotFound), "membership not found")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// GET /v1/profiles/{participant}
func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.engine.Profile(r.Context(), chi.URLParam(r, "participant"))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, string(domain.CategoryNotFound), "profile not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ─── Verification ───────────────────────────────────────────────────────────

type verificationRequest struct {
	Participant string          `json:"participant"`
	Kind        domain.GoalKind `json:"kind"`
	Score       uint64          `json:"score"`
	IsCompleted bool            `json:"is_completed"`
}

// POST /v1/challenges/{id}/verifications: operator submits a result.
// Kind defaults to the automated-metric payload.
func (s *Server) handleRecordVerification(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	id, ok := challengeID(w, r)
	if !ok {
		return
	}
	var req verificationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Kind == "" {
		req.Kind = domain.GoalAutomatedMetric
	}
	v := domain.Verification{Kind: req.Kind, Score: req.Score, IsCompleted: req.IsCompleted}
	m, err := s.engine.RecordVerification(r.Context(), caller, id, req.Participant, v)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type voteRequest struct {
	Member string `json:"member"`
	Choice *bool  `json:"choice"`
}

// POST /v1/challenges/{id}/votes: the caller votes on a member.
func (s *Server) handleCastVote(w http.ResponseWriter, r *http.Request) {
	voter, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	id, ok := challengeID(w, r)
	if !ok {
		return
	}
	var req voteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Choice == nil {
		writeError(w, http.StatusBadRequest, string(domain.CategoryValidation), "choice is required")
		return
	}
	m, err := s.engine.CastVote(r.Context(), id, req.Member, voter, *req.Choice)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// GET /v1/challenges/{id}/voters/{voter}/progress
func (s *Server) handleVotingProgress(w http.ResponseWriter, r *http.Request) {
	id, ok := challengeID(w, r)
	if !ok {
		return
	}
	p, err := s.engine.VotingProgress(r.Context(), id, chi.URLParam(r, "voter"))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ─── Settlement ─────────────────────────────────────────────────────────────

// POST /v1/challenges/{id}/claim: the caller claims their refund.
func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	participant, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	id, ok := challengeID(w, r)
	if !ok {
		return
	}
	refund, err := s.engine.Claim(r.Context(), id, participant)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"challenge_id": id,
		"participant":  participant,
		"refunded":     refund,
		"amount":       domain.FormatAmount(refund, s.engine.Decimals()),
	})
}

// ─── Accounts ───────────────────────────────────────────────────────────────

// GET /v1/accounts/{account}
func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	account := accountParam(r)
	bal, err := s.engine.Balance(r.Context(), account)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account": account,
		"balance": bal,
		"amount":  domain.FormatAmount(bal, s.engine.Decimals()),
	})
}

type depositRequest struct {
	Amount string `json:"amount"` // decimal, e.g. "12.5"
}

// POST /v1/accounts/{account}/deposit: owner funds an account.
func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req depositRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, err := domain.ParseAmount(req.Amount, s.engine.Decimals())
	if err != nil {
		writeError(w, http.StatusBadRequest, string(domain.CategoryValidation), err.Error())
		return
	}
	account := accountParam(r)
	if err := s.engine.Deposit(r.Context(), caller, account, amount); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.handleGetBalance(w, r)
}

// GET /v1/accounts/{account}/entries?limit=N
func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, string(domain.CategoryValidation), "invalid limit")
			return
		}
		limit = n
	}
	entries, err := s.ledger.Entries(r.Context(), accountParam(r), limit)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	if entries == nil {
		entries = []domain.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

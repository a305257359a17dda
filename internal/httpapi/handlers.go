package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/servant-draft/internal/auth"
	"github.com/DoyleJ11/servant-draft/internal/balance"
	"github.com/DoyleJ11/servant-draft/internal/draft"
	"github.com/DoyleJ11/servant-draft/internal/engine"
	"github.com/DoyleJ11/servant-draft/internal/hub"
	"github.com/DoyleJ11/servant-draft/internal/lobby"
	"github.com/DoyleJ11/servant-draft/internal/platform"
	"github.com/DoyleJ11/servant-draft/internal/recorder"
	"github.com/DoyleJ11/servant-draft/internal/roster"
	"github.com/DoyleJ11/servant-draft/pkg/types"
)

const (
	maxBody      = 1 << 20
	defaultLimit = 20
	maxLimit     = 200
)

var errBadRequest = errors.New("bad request")

type api struct {
	Deps
}

// apiContext is a CommandContext for calls made over HTTP. Replies travel
// in the response body, so Respond has nothing to do.
type apiContext struct {
	key  engine.Key
	user string
}

func (c apiContext) GuildID() string                       { return c.key.GuildID }
func (c apiContext) ChannelID() string                     { return c.key.ChannelID }
func (c apiContext) UserID() string                        { return c.user }
func (c apiContext) Respond(context.Context, string) error { return nil }

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (a *api) listSessions(w http.ResponseWriter, r *http.Request) {
	keys, err := a.Orchestrator.Sessions(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	out := types.SessionList{Sessions: make([]string, len(keys))}
	for i, k := range keys {
		out.Sessions[i] = k.String()
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) startSession(w http.ResponseWriter, r *http.Request) {
	var req types.StartSessionRequest
	if !a.decode(w, r, &req) {
		return
	}
	if req.GuildID == "" || req.ChannelID == "" {
		a.fail(w, r, fmt.Errorf("%w: guild_id and channel_id are required", errBadRequest))
		return
	}
	user, err := actingUser(r, req.UserID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	mode, err := parseMode(req.Mode)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	start := draft.StartRequest{TeamSize: req.TeamSize, Mode: mode, Spectate: req.Spectate}
	for _, p := range req.Players {
		id, err := draft.ParseUserID(p.ID)
		if err != nil {
			a.fail(w, r, fmt.Errorf("%w: player %q: %w", errBadRequest, p.ID, err))
			return
		}
		start.Players = append(start.Players, draft.Participant{ID: id, Name: p.Name})
	}

	cc := apiContext{key: engine.Key{GuildID: req.GuildID, ChannelID: req.ChannelID}, user: user}
	if req.Simulation {
		_, err = a.Orchestrator.StartSimulation(r.Context(), cc, start)
	} else {
		_, err = a.Orchestrator.StartDraft(r.Context(), cc, start)
	}
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.writeStatus(w, r, cc.key, http.StatusCreated)
}

func (a *api) getSession(w http.ResponseWriter, r *http.Request) {
	key, ok := a.sessionKey(w, r)
	if !ok {
		return
	}
	a.writeStatus(w, r, key, http.StatusOK)
}

func (a *api) writeStatus(w http.ResponseWriter, r *http.Request, key engine.Key, code int) {
	v, err := a.Orchestrator.Status(r.Context(), key)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	session, err := json.Marshal(v.Session)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, code, types.SessionStatus{Key: key.String(), Version: v.Version, Clients: v.NumClients, Session: session})
}

func (a *api) cancelSession(w http.ResponseWriter, r *http.Request) {
	key, ok := a.sessionKey(w, r)
	if !ok {
		return
	}
	var req types.CancelRequest
	if r.ContentLength > 0 && !a.decode(w, r, &req) {
		return
	}
	user, err := actingUser(r, req.UserID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.Orchestrator.Cancel(r.Context(), apiContext{key: key, user: user}); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) cleanupSession(w http.ResponseWriter, r *http.Request) {
	key, ok := a.sessionKey(w, r)
	if !ok {
		return
	}
	if err := a.Orchestrator.ForceCleanup(r.Context(), key); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) postIntent(w http.ResponseWriter, r *http.Request) {
	key, ok := a.sessionKey(w, r)
	if !ok {
		return
	}
	var req types.IntentRequest
	if !a.decode(w, r, &req) {
		return
	}
	user, err := actingUser(r, req.UserID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	actor, err := draft.ParseUserID(user)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	in := draft.Intent{
		SessionKey: key,
		ActorID:    actor,
		ActorName:  req.UserName,
		Action:     draft.Action(req.Action),
		Phase:      engine.Phase(req.Phase),
		Round:      req.Round,
		Payload:    req.Payload,
	}
	if in.Payload == "" && in.Action.Valued() {
		a.fail(w, r, fmt.Errorf("%w: payload required for %s", errBadRequest, req.Action))
		return
	}
	text, err := a.Orchestrator.Dispatch(r.Context(), in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types.IntentResponse{Message: text})
}

func (a *api) recordOutcome(w http.ResponseWriter, r *http.Request) {
	var req types.OutcomeRequest
	if !a.decode(w, r, &req) {
		return
	}
	user, err := actingUser(r, "")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	matchID := chi.URLParam(r, "id")
	if err := a.Orchestrator.RecordOutcome(r.Context(), apiContext{user: user}, matchID, req.Winner, req.Score); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) getOutcome(w http.ResponseWriter, r *http.Request) {
	if a.History == nil {
		a.fail(w, r, fmt.Errorf("%w: match history", draft.ErrNotConfigured))
		return
	}
	out, err := a.History.Outcome(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) recentMatches(w http.ResponseWriter, r *http.Request) {
	if a.History == nil {
		a.fail(w, r, fmt.Errorf("%w: match history", draft.ErrNotConfigured))
		return
	}
	limit := defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			a.fail(w, r, fmt.Errorf("%w: limit %q", errBadRequest, raw))
			return
		}
		limit = min(n, maxLimit)
	}
	recs, err := a.History.Recent(r.Context(), chi.URLParam(r, "guild"), limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if recs == nil {
		recs = []recorder.MatchRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (a *api) tuneBalancer(w http.ResponseWriter, r *http.Request) {
	var req types.TuneRequest
	if !a.decode(w, r, &req) {
		return
	}
	settings, err := a.Orchestrator.TuneBalancer(r.Context(), chi.URLParam(r, "guild"), req.Algorithm, toWeights(req.Weights))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types.TuneResponse{
		GuildID:   settings.GuildID,
		Algorithm: string(settings.Algorithm),
		Weights:   fromWeights(settings.Weights),
	})
}

func (a *api) listRoster(w http.ResponseWriter, r *http.Request) {
	if a.Roster == nil {
		a.fail(w, r, fmt.Errorf("%w: roster", draft.ErrNotConfigured))
		return
	}
	players, err := a.Roster.LoadRoster(r.Context(), chi.URLParam(r, "guild"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	out := make([]types.RosterPlayer, len(players))
	for i, p := range players {
		out[i] = types.RosterPlayer{
			UserID:           strconv.FormatInt(p.UserID, 10),
			Name:             p.Name,
			Rating:           p.Rating,
			CharacterRatings: p.CharacterRatings,
			Preferred:        p.Preferred,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) upsertRosterPlayer(w http.ResponseWriter, r *http.Request) {
	if a.Roster == nil {
		a.fail(w, r, fmt.Errorf("%w: roster", draft.ErrNotConfigured))
		return
	}
	var req types.RosterPlayer
	if !a.decode(w, r, &req) {
		return
	}
	id, err := draft.ParseUserID(chi.URLParam(r, "user"))
	if err != nil {
		a.fail(w, r, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}
	if req.Name == "" {
		a.fail(w, r, fmt.Errorf("%w: name is required", errBadRequest))
		return
	}
	p := roster.Player{
		GuildID:          chi.URLParam(r, "guild"),
		UserID:           int64(id),
		Name:             req.Name,
		Rating:           req.Rating,
		CharacterRatings: req.CharacterRatings,
		Preferred:        req.Preferred,
	}
	if err := a.Roster.Upsert(r.Context(), p); err != nil {
		a.fail(w, r, err)
		return
	}
	req.UserID = strconv.FormatInt(p.UserID, 10)
	writeJSON(w, http.StatusOK, req)
}

func (a *api) previewBalance(w http.ResponseWriter, r *http.Request) {
	if a.Balancer == nil {
		a.fail(w, r, fmt.Errorf("%w: balancer", draft.ErrNotConfigured))
		return
	}
	var req types.BalanceRequest
	if !a.decode(w, r, &req) {
		return
	}
	if req.TeamSize < 1 {
		a.fail(w, r, fmt.Errorf("%w: team_size must be positive", engine.ErrInvalidTeamSize))
		return
	}
	breq := balance.Request{TeamSize: req.TeamSize, Weights: toWeights(req.Weights)}
	if req.Algorithm != "" {
		alg, err := balance.ParseAlgorithm(req.Algorithm)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		breq.Algorithm = alg
	}
	for _, p := range req.Players {
		id, err := draft.ParseUserID(p.UserID)
		if err != nil {
			a.fail(w, r, fmt.Errorf("%w: player %q: %w", errBadRequest, p.UserID, err))
			return
		}
		breq.Players = append(breq.Players, balance.Player{
			UserID:      int64(id),
			Name:        p.Name,
			Character:   p.Character,
			Rating:      p.Rating,
			Proficiency: p.Proficiency,
		})
	}
	res, err := a.Balancer.Balance(r.Context(), breq)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *api) sessionKey(w http.ResponseWriter, r *http.Request) (engine.Key, bool) {
	key, err := engine.ParseKey(chi.URLParam(r, "key"))
	if err != nil {
		a.fail(w, r, fmt.Errorf("%w: %w", errBadRequest, err))
		return engine.Key{}, false
	}
	return key, true
}

// actingUser is who a request acts as. Only operators may name someone
// other than the token's subject.
func actingUser(r *http.Request, requested string) (string, error) {
	sub, _ := auth.SubjectFrom(r.Context())
	switch {
	case requested == "" && sub.UserID == "":
		return "", fmt.Errorf("%w: user_id is required", errBadRequest)
	case requested == "":
		return sub.UserID, nil
	case requested != sub.UserID && !sub.Operator:
		return "", fmt.Errorf("%w: cannot act for another user", engine.ErrPermission)
	}
	return requested, nil
}

func parseMode(s string) (engine.TeamMode, error) {
	switch m := engine.TeamMode(s); m {
	case engine.ModeUnset, engine.ModeManual, engine.ModeAuto:
		return m, nil
	}
	return "", fmt.Errorf("%w: mode %q", errBadRequest, s)
}

func toWeights(w *types.Weights) *balance.Weights {
	if w == nil {
		return nil
	}
	return &balance.Weights{Skill: w.Skill, Synergy: w.Synergy, Role: w.Role, Tier: w.Tier, Comfort: w.Comfort, Meta: w.Meta}
}

func fromWeights(w *balance.Weights) *types.Weights {
	if w == nil {
		return nil
	}
	return &types.Weights{Skill: w.Skill, Synergy: w.Synergy, Role: w.Role, Tier: w.Tier, Comfort: w.Comfort, Meta: w.Meta}
}

func (a *api) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		a.fail(w, r, fmt.Errorf("%w: %w", errBadRequest, err))
		return false
	}
	return true
}

func (a *api) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusOf(err)
	if code >= http.StatusInternalServerError {
		a.Log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	resp := types.ErrorResponse{Error: err.Error()}
	if code != http.StatusBadRequest {
		resp.Message = draft.UserMessage(err)
	}
	writeJSON(w, code, resp)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, draft.ErrUnknownAction),
		errors.Is(err, engine.ErrInvalidTeamSize),
		errors.Is(err, balance.ErrInvalidWeights),
		errors.Is(err, balance.ErrUnknownAlgorithm),
		errors.Is(err, balance.ErrEmptyRoster),
		errors.Is(err, recorder.ErrInvalidRecord):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrPermission), errors.Is(err, engine.ErrUnknownPlayer):
		return http.StatusForbidden
	case errors.Is(err, draft.ErrNoSession), errors.Is(err, lobby.ErrClosed), errors.Is(err, recorder.ErrUnknownMatch):
		return http.StatusNotFound
	case errors.Is(err, hub.ErrSessionExists),
		errors.Is(err, engine.ErrStalePhase),
		errors.Is(err, engine.ErrQuotaViolation),
		errors.Is(err, engine.ErrUnavailable),
		errors.Is(err, engine.ErrDraftFull):
		return http.StatusConflict
	case errors.Is(err, draft.ErrNotConfigured):
		return http.StatusNotImplemented
	case errors.Is(err, platform.ErrTransientIO), errors.Is(err, hub.ErrStopped):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

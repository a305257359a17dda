package draft

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/DoyleJ11/servant-draft/internal/balance"
	"github.com/DoyleJ11/servant-draft/internal/engine"
	"github.com/DoyleJ11/servant-draft/internal/lobby"
	"github.com/DoyleJ11/servant-draft/internal/platform"
	"github.com/DoyleJ11/servant-draft/internal/recorder"
	"github.com/DoyleJ11/servant-draft/internal/roster"
)

// onEvents runs on the lobby's notifier goroutine, one snapshot at a time.
func (o *Orchestrator) onEvents(key engine.Key) func(context.Context, lobby.Snapshot) {
	return func(ctx context.Context, snap lobby.Snapshot) {
		b := o.board(key)
		if b == nil {
			return
		}
		log := o.log.With(zap.String("session", key.String()), zap.Int("version", snap.Version))
		o.show(ctx, key, b, snap, log)

		if ev, ok := engine.FindEvent(snap.Events, engine.EvtTeamModeChosen); ok && ev.Mode == engine.ModeAuto {
			o.autoBalance(ctx, key, log)
		}
		if engine.ContainsEvent(snap.Events, engine.EvtDraftCompleted) {
			o.finish(ctx, key, log)
			return
		}
		if snap.Session.Simulation {
			o.autopilot(ctx, key, b, log)
		}
	}
}

func (o *Orchestrator) show(ctx context.Context, key engine.Key, b *board, snap lobby.Snapshot, log *zap.Logger) {
	phase := snap.Session.Phase
	bctx := platform.WithBucket(ctx, bucket(key, phase, "board"))
	if err := o.platform.EditMessage(bctx, b.message, Board(snap.Session)); err != nil {
		log.Warn("draft message not updated", zap.Error(err))
	}
	lines := Announce(snap.Session, snap.Events)
	if len(lines) == 0 {
		return
	}
	lctx := platform.WithBucket(ctx, bucket(key, phase, "log"))
	if _, err := o.platform.SendMessage(lctx, b.logChannel(), platform.Content{Text: strings.Join(lines, "\n")}); err != nil {
		log.Warn("draft log not posted", zap.Error(err))
	}
}

// autoBalance splits the roster with the balancer and hands the result back
// to the session. A balancer failure falls back to the simple split so the
// draft always finishes.
func (o *Orchestrator) autoBalance(ctx context.Context, key engine.Key, log *zap.Logger) {
	lb, err := o.lobby(ctx, key)
	if err != nil {
		return
	}
	var drafted []balance.Player
	var size int
	err = lb.Read(ctx, func(s *engine.Session) {
		size = s.TeamSize
		for _, id := range s.PlayerIDs() {
			p := s.Players[id]
			drafted = append(drafted, balance.Player{UserID: int64(id), Name: p.Name, Character: p.Character})
		}
	})
	if err != nil {
		return
	}

	if o.roster != nil {
		rated, err := o.roster.LoadRoster(ctx, key.GuildID)
		if err != nil {
			log.Warn("roster unavailable, balancing unrated", zap.Error(err))
		}
		drafted = roster.BalancePlayers(rated, drafted)
	}

	algorithm, weights := o.balanceSettings(ctx, key.GuildID)
	req := balance.Request{Players: drafted, TeamSize: size, Algorithm: algorithm, Weights: weights}
	res, err := o.balancer.Balance(ctx, req)
	if err != nil {
		log.Error("balancer failed, using simple split", zap.String("algorithm", string(algorithm)), zap.Error(err))
		req.Algorithm, req.Weights = balance.AlgorithmSimple, nil
		if res, err = o.balancer.Balance(ctx, req); err != nil {
			log.Error("simple split failed", zap.Error(err))
			return
		}
	}
	if len(res.Extras) > 0 {
		log.Warn("balancer left players out", zap.Int("extras", len(res.Extras)))
	}

	out, err := lb.Send(ctx, engine.Command{
		Type:  engine.CmdApplySplit,
		Phase: engine.PhaseTeamSelection,
		Team1: userIDs(res.Team1),
		Team2: userIDs(res.Team2),
		Balance: &engine.BalanceSummary{
			Algorithm:  string(res.Algorithm),
			Score:      res.Score,
			Confidence: res.Confidence,
		},
	})
	if err == nil {
		err = out.Err
	}
	if err != nil {
		log.Error("balanced split rejected", zap.Error(err))
		return
	}
	log.Info("teams balanced",
		zap.String("algorithm", string(res.Algorithm)),
		zap.Float64("score", res.Score),
		zap.Duration("elapsed", res.Elapsed))
}

func userIDs(players []balance.Player) []engine.UserID {
	out := make([]engine.UserID, len(players))
	for i, p := range players {
		out[i] = engine.UserID(p.UserID)
	}
	return out
}

// finish records the completed draft and releases the channel.
func (o *Orchestrator) finish(ctx context.Context, key engine.Key, log *zap.Logger) {
	lb, err := o.lobby(ctx, key)
	if err != nil {
		return
	}
	var rec recorder.MatchRecord
	if err := lb.Read(ctx, func(s *engine.Session) { rec = recorder.Prematch(s) }); err != nil {
		return
	}
	if o.recorder != nil {
		if err := o.recorder.WritePrematch(ctx, rec); err != nil {
			log.Error("pre-match record not written", zap.String("match", rec.MatchID), zap.Error(err))
		}
	}

	// Removing the session cancels ctx, so the rest runs detached from it.
	ctx = context.WithoutCancel(ctx)
	o.store.Remove(ctx, key)
	o.mu.Lock()
	b := o.boards[key]
	delete(o.boards, key)
	o.mu.Unlock()
	o.forget(key, b)
	log.Info("draft completed", zap.String("match", rec.MatchID), zap.String("mode", rec.Mode))
}

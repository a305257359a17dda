// Package drafttest builds an orchestrator on the in-memory platform for
// tests of the outer surfaces.
package drafttest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DoyleJ11/servant-draft/internal/balance"
	"github.com/DoyleJ11/servant-draft/internal/catalog"
	"github.com/DoyleJ11/servant-draft/internal/dice"
	"github.com/DoyleJ11/servant-draft/internal/draft"
	"github.com/DoyleJ11/servant-draft/internal/engine"
	"github.com/DoyleJ11/servant-draft/internal/hub"
	"github.com/DoyleJ11/servant-draft/internal/platform"
)

// Context is a CommandContext that records what it was told.
type Context struct {
	Guild, Channel, User string

	mu      sync.Mutex
	replies []string
}

func (c *Context) GuildID() string   { return c.Guild }
func (c *Context) ChannelID() string { return c.Channel }
func (c *Context) UserID() string    { return c.User }

func (c *Context) Respond(_ context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replies = append(c.replies, text)
	return nil
}

func (c *Context) Replies() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.replies...)
}

type Env struct {
	Orchestrator *draft.Orchestrator
	Hub          *hub.Hub
	Platform     *platform.Memory
	Clock        *dice.ManualClock
}

// New returns an orchestrator for teams of two with deterministic dice.
// Extra deps can be set through with before construction.
func New(t testing.TB, with ...func(*draft.Deps)) Env {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)
	bal, err := balance.New(balance.DefaultSettings(), nil, zap.NewNop())
	require.NoError(t, err)

	h := hub.NewHub(context.Background())
	t.Cleanup(h.Shutdown)
	mem := platform.NewMemory()
	clock := dice.NewManualClock(time.Unix(1_700_000_000, 0))

	var seedMu sync.Mutex
	seed := int64(100)
	deps := draft.Deps{
		Store:    h,
		Platform: mem,
		Catalog:  cat,
		Balancer: bal,
		TeamSize: 2,
		Clock:    clock,
		NewDice: func() dice.Roller {
			seedMu.Lock()
			defer seedMu.Unlock()
			seed++
			return dice.NewRoller(seed)
		},
		Log: zap.NewNop(),
	}
	for _, fn := range with {
		fn(&deps)
	}
	o, err := draft.New(deps)
	require.NoError(t, err)
	return Env{Orchestrator: o, Hub: h, Platform: mem, Clock: clock}
}

// Players returns n participants with ids 1..n.
func Players(n int) []draft.Participant {
	out := make([]draft.Participant, n)
	for i := range out {
		id := i + 1
		out[i] = draft.Participant{ID: engine.UserID(id), Name: string(rune('a' + i))}
	}
	return out
}

package discord

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/servant-draft/internal/platform"
)

func TestClassify(t *testing.T) {
	header := http.Header{}
	header.Set("Retry-After", "1.5")
	limited := &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusTooManyRequests, Header: header}}
	forbidden := &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusForbidden, Header: http.Header{}}}

	var he *platform.HTTPError
	require.ErrorAs(t, classify(limited), &he)
	assert.True(t, he.Transient())
	assert.Equal(t, 1500*time.Millisecond, he.RetryAfter)

	require.ErrorAs(t, classify(fmt.Errorf("send: %w", forbidden)), &he)
	assert.False(t, he.Transient())

	plain := errors.New("boom")
	assert.Same(t, plain, classify(plain))
	assert.NoError(t, classify(nil))
}

func TestButtonRowsChunkByFive(t *testing.T) {
	var buttons []platform.Button
	for i := range 7 {
		buttons = append(buttons, platform.Button{ID: fmt.Sprint(i), Label: fmt.Sprint(i), Style: platform.StyleDanger})
	}
	rows := buttonRows(buttons)
	require.Len(t, rows, 2)
	assert.Len(t, rows[0].(discordgo.ActionsRow).Components, 5)
	assert.Len(t, rows[1].(discordgo.ActionsRow).Components, 2)
	assert.Equal(t, discordgo.DangerButton, rows[1].(discordgo.ActionsRow).Components[0].(discordgo.Button).Style)
}

func TestPromptRowsSplitLongLists(t *testing.T) {
	var opts []platform.Option
	for i := range 41 {
		opts = append(opts, platform.Option{Value: fmt.Sprint(i), Label: fmt.Sprint(i)})
	}
	rows := promptRows("n1", platform.Prompt{Title: "Ban", Options: opts})
	require.Len(t, rows, 3)

	first := rows[0].(discordgo.ActionsRow).Components[0].(discordgo.SelectMenu)
	second := rows[1].(discordgo.ActionsRow).Components[0].(discordgo.SelectMenu)
	assert.Len(t, first.Options, 25)
	assert.Len(t, second.Options, 16)
	assert.Equal(t, "pi|n1|1", second.CustomID)
	assert.Equal(t, 1, second.MaxValues)

	cancel := rows[2].(discordgo.ActionsRow).Components[0].(discordgo.Button)
	assert.Equal(t, "pi|n1|cancel", cancel.CustomID)
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/servant-draft/internal/auth"
	"github.com/DoyleJ11/servant-draft/pkg/types"
)

type seen struct {
	method string
	path   string
	auth   string
	body   []byte
}

func fakeServer(t *testing.T, status int, reply string) (*httptest.Server, *seen) {
	t.Helper()
	s := &seen{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.method, s.path, s.auth = r.Method, r.URL.RequestURI(), r.Header.Get("Authorization")
		s.body, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv, s
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	parser, err := kong.New(&CLI, kong.Name("draftctl"), kong.Exit(func(int) { t.Fatal("kong exited") }))
	require.NoError(t, err)
	kctx, err := parser.Parse(args)
	require.NoError(t, err)
	var out bytes.Buffer
	err = run(context.Background(), kctx.Command(), &out)
	return out.String(), err
}

func TestCommandsHitRoutes(t *testing.T) {
	dir := t.TempDir()
	players := filepath.Join(dir, "players.yaml")
	require.NoError(t, os.WriteFile(players, []byte(`
team_size: 1
algorithm: simple
players:
  - {user_id: "1", name: a, character: Saber, rating: 1200}
  - {user_id: "2", name: b, character: Archer}
`), 0o600))

	tests := []struct {
		name   string
		args   []string
		method string
		path   string
		check  func(t *testing.T, body []byte)
	}{
		{"sessions", []string{"sessions"}, http.MethodGet, "/sessions", nil},
		{"status", []string{"status", "g1:c1"}, http.MethodGet, "/sessions/g1:c1", nil},
		{"start", []string{"start", "--guild", "g1", "--channel", "c1", "--size", "2", "--players", "1=a,2=b"}, http.MethodPost, "/sessions",
			func(t *testing.T, body []byte) {
				var req types.StartSessionRequest
				require.NoError(t, json.Unmarshal(body, &req))
				assert.Equal(t, 2, req.TeamSize)
				assert.False(t, req.Simulation)
				assert.Equal(t, []types.Participant{{ID: "1", Name: "a"}, {ID: "2", Name: "b"}}, req.Players)
			}},
		{"simulate", []string{"simulate", "--guild", "g1", "--channel", "c1", "--spectate"}, http.MethodPost, "/sessions",
			func(t *testing.T, body []byte) {
				var req types.StartSessionRequest
				require.NoError(t, json.Unmarshal(body, &req))
				assert.True(t, req.Simulation)
				assert.True(t, req.Spectate)
			}},
		{"intent", []string{"intent", "g1:c1", "ban", "Saber", "--phase", "servant_ban"}, http.MethodPost, "/sessions/g1:c1/intents",
			func(t *testing.T, body []byte) {
				var req types.IntentRequest
				require.NoError(t, json.Unmarshal(body, &req))
				assert.Equal(t, types.IntentRequest{Action: "ban", Payload: "Saber", Phase: "servant_ban"}, req)
			}},
		{"cleanup", []string{"cleanup", "g1:c1"}, http.MethodPost, "/sessions/g1:c1/cleanup", nil},
		{"cancel", []string{"cancel", "g1:c1"}, http.MethodDelete, "/sessions/g1:c1", nil},
		{"outcome", []string{"outcome", "m1", "2", "--score", "3-1"}, http.MethodPost, "/matches/m1/outcome",
			func(t *testing.T, body []byte) {
				assert.JSONEq(t, `{"winner":2,"score":"3-1"}`, string(body))
			}},
		{"matches", []string{"matches", "g1", "--limit", "5"}, http.MethodGet, "/guilds/g1/matches?limit=5", nil},
		{"rate", []string{"rate", "g1", "7", "1300", "--name", "rin"}, http.MethodPut, "/guilds/g1/roster/7",
			func(t *testing.T, body []byte) {
				assert.JSONEq(t, `{"user_id":"7","name":"rin","rating":1300}`, string(body))
			}},
		{"balance", []string{"balance", players}, http.MethodPost, "/balance",
			func(t *testing.T, body []byte) {
				var req types.BalanceRequest
				require.NoError(t, json.Unmarshal(body, &req))
				assert.Equal(t, "simple", req.Algorithm)
				require.Len(t, req.Players, 2)
				assert.Equal(t, 1200.0, *req.Players[0].Rating)
				assert.Nil(t, req.Players[1].Rating)
			}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, s := fakeServer(t, http.StatusOK, `{"ok":true}`)
			out, err := execute(t, append([]string{"--server", srv.URL, "--token", "tok"}, tt.args...)...)
			require.NoError(t, err)
			assert.Equal(t, "{\n  \"ok\": true\n}\n", out)
			assert.Equal(t, tt.method, s.method)
			assert.Equal(t, tt.path, s.path)
			assert.Equal(t, "Bearer tok", s.auth)
			if tt.check != nil {
				tt.check(t, s.body)
			}
		})
	}
}

func TestAPIErrors(t *testing.T) {
	srv, _ := fakeServer(t, http.StatusConflict, `{"error":"draft already running","message":"A draft is already running in this channel."}`)
	_, err := execute(t, "--server", srv.URL, "sessions")
	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, "409: draft already running (A draft is already running in this channel.)", err.Error())
}

func TestTokenCommand(t *testing.T) {
	out, err := execute(t, "token", "42", "--secret", "s3cret", "--operator")
	require.NoError(t, err)
	sub, err := auth.Verify("s3cret", out[:len(out)-1])
	require.NoError(t, err)
	assert.Equal(t, auth.Subject{UserID: "42", Operator: true}, sub)
}

func TestParseParticipant(t *testing.T) {
	p, err := parseParticipant("12=Rin Tohsaka")
	require.NoError(t, err)
	assert.Equal(t, types.Participant{ID: "12", Name: "Rin Tohsaka"}, p)

	for _, bad := range []string{"12", "=rin"} {
		_, err := parseParticipant(bad)
		assert.Error(t, err, bad)
	}
}

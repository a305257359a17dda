package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/DoyleJ11/servant-draft/pkg/types"
)

// client talks to the server's HTTP API.
type client struct {
	base  string
	token string
	http  *http.Client
	out   io.Writer
}

func newClient(server, token string, out io.Writer) *client {
	return &client{
		base:  strings.TrimRight(server, "/"),
		token: token,
		http:  &http.Client{Timeout: 30 * time.Second},
		out:   out,
	}
}

type apiError struct {
	Status int
	Body   types.ErrorResponse
}

func (e *apiError) Error() string {
	if e.Body.Message != "" && e.Body.Message != e.Body.Error {
		return fmt.Sprintf("%d: %s (%s)", e.Status, e.Body.Error, e.Body.Message)
	}
	return fmt.Sprintf("%d: %s", e.Status, e.Body.Error)
}

// do sends body as JSON and pretty-prints the JSON reply.
func (c *client) do(ctx context.Context, method, path string, body any) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 300 {
		e := &apiError{Status: resp.StatusCode}
		if json.Unmarshal(data, &e.Body) != nil || e.Body.Error == "" {
			e.Body.Error = strings.TrimSpace(string(data))
		}
		return e
	}
	if len(data) == 0 {
		return nil
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		return errors.New("server sent invalid JSON")
	}
	pretty.WriteByte('\n')
	_, err = pretty.WriteTo(c.out)
	return err
}

func sessionPath(key string, rest ...string) string {
	return "/sessions/" + url.PathEscape(key) + strings.Join(rest, "")
}

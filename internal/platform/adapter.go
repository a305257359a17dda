// Package platform is the contract between the draft core and the chat
// platform that renders it.
package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrTransientIO is returned once retries against the platform are used up.
var ErrTransientIO = errors.New("platform temporarily unavailable")

var ErrUnknownMessage = errors.New("unknown message")
var ErrPromptCancelled = errors.New("prompt cancelled")

type MessageHandle struct {
	ChannelID string
	MessageID string
}

type ThreadHandle struct {
	ParentID string
	ThreadID string
}

type ButtonStyle int

const (
	StylePrimary ButtonStyle = iota
	StyleSecondary
	StyleSuccess
	StyleDanger
)

type Button struct {
	ID       string
	Label    string
	Style    ButtonStyle
	Disabled bool
}

// Content is what a message shows: text and a row of buttons.
type Content struct {
	Text    string
	Buttons []Button
}

type Option struct {
	Value       string
	Label       string
	Description string
}

// Prompt is a private choice shown to exactly one user.
type Prompt struct {
	Title   string
	Options []Option
	// Max is how many options may be chosen; 0 means one.
	Max int
}

type Selection struct {
	Values    []string
	Cancelled bool
}

// Click is a button press delivered by the platform.
type Click struct {
	ButtonID  string
	UserID    string
	UserName  string
	GuildID   string
	ChannelID string
	// Reply answers the clicking user privately. May be nil.
	Reply func(ctx context.Context, text string) error
}

type ButtonHandler func(ctx context.Context, click Click)

// Adapter is implemented by every platform the draft can run on. Calls may
// fail transiently; wrap adapters in Resilient before handing them out.
type Adapter interface {
	SendMessage(ctx context.Context, channelID string, content Content) (MessageHandle, error)
	EditMessage(ctx context.Context, handle MessageHandle, content Content) error
	FetchMessage(ctx context.Context, handle MessageHandle) (Content, error)
	OpenPrivateInterface(ctx context.Context, userID string, prompt Prompt) (Selection, error)
	// RegisterButton routes clicks on every button whose id starts with
	// prefix to fn.
	RegisterButton(prefix string, fn ButtonHandler)
	CreateThread(ctx context.Context, channelID, name string) (ThreadHandle, error)
}

// HTTPError is a failed platform request with its status code.
type HTTPError struct {
	Status     int
	RetryAfter time.Duration
	Err        error
}

func (e *HTTPError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("platform request failed: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("platform request failed: %d: %v", e.Status, e.Err)
}

func (e *HTTPError) Unwrap() error { return e.Err }

// Transient reports whether retrying the request could succeed.
func (e *HTTPError) Transient() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

type bucketKey struct{}

// WithBucket tags ctx with the rate-limit bucket for the calls made with it.
func WithBucket(ctx context.Context, bucket string) context.Context {
	return context.WithValue(ctx, bucketKey{}, bucket)
}

func BucketFrom(ctx context.Context) string {
	if b, ok := ctx.Value(bucketKey{}).(string); ok && b != "" {
		return b
	}
	return "default"
}

package platform

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sasha-s/go-deadlock"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/time/rate"
)

type ResilientConfig struct {
	// RequestsPerMinute is the budget of each bucket.
	RequestsPerMinute int
	MaxRetries        int
	InitialInterval   time.Duration
	MaxInterval       time.Duration
}

func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		RequestsPerMinute: 50,
		MaxRetries:        3,
		InitialInterval:   500 * time.Millisecond,
		MaxInterval:       8 * time.Second,
	}
}

// Resilient rate limits, retries and deduplicates calls to another adapter.
type Resilient struct {
	next Adapter
	cfg  ResilientConfig
	log  *zap.Logger

	mu       deadlock.Mutex
	limiters map[string]*rate.Limiter
	edits    map[MessageHandle][32]byte
}

func NewResilient(next Adapter, cfg ResilientConfig, log *zap.Logger) *Resilient {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = DefaultResilientConfig().RequestsPerMinute
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = DefaultResilientConfig().InitialInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = DefaultResilientConfig().MaxInterval
	}
	return &Resilient{
		next:     next,
		cfg:      cfg,
		log:      log,
		limiters: map[string]*rate.Limiter{},
		edits:    map[MessageHandle][32]byte{},
	}
}

// limiter holds a bucket's calls at least a minute/RequestsPerMinute apart,
// so no minute admits more than RequestsPerMinute of them.
func (r *Resilient) limiter(bucket string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[bucket]
	if !ok {
		l = rate.NewLimiter(rate.Every(time.Minute/time.Duration(r.cfg.RequestsPerMinute)), 1)
		r.limiters[bucket] = l
	}
	return l
}

func (r *Resilient) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.InitialInterval
	b.MaxInterval = r.cfg.MaxInterval
	return b
}

// call runs op under the bucket's limiter and retries transient failures.
// Exhausted retries come back wrapped in ErrTransientIO.
func call[T any](ctx context.Context, r *Resilient, name string, op func(context.Context) (T, error)) (T, error) {
	bucket := BucketFrom(ctx)
	lim := r.limiter(bucket)

	var lastTransient error
	attempt := func() (T, error) {
		var zero T
		if err := lim.Wait(ctx); err != nil {
			return zero, backoff.Permanent(err)
		}
		res, err := op(ctx)
		if err == nil {
			return res, nil
		}
		var he *HTTPError
		if !errors.As(err, &he) || !he.Transient() {
			lastTransient = nil
			return zero, backoff.Permanent(err)
		}
		lastTransient = err
		if he.RetryAfter > 0 {
			return zero, backoff.RetryAfter(int(math.Ceil(he.RetryAfter.Seconds())))
		}
		return zero, err
	}

	res, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(r.backOff()),
		backoff.WithMaxTries(uint(max(0, r.cfg.MaxRetries)+1)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			r.log.Debug("retrying platform call",
				zap.String("op", name),
				zap.String("bucket", bucket),
				zap.Duration("wait", wait),
				zap.Error(err))
		}),
	)
	if err == nil {
		return res, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, ctxErr
	}
	if lastTransient != nil {
		r.log.Warn("platform call failed after retries",
			zap.String("op", name),
			zap.String("bucket", bucket),
			zap.Error(lastTransient))
		return res, fmt.Errorf("%w: %s: %w", ErrTransientIO, name, lastTransient)
	}
	return res, err
}

func (r *Resilient) SendMessage(ctx context.Context, channelID string, content Content) (MessageHandle, error) {
	h, err := call(ctx, r, "send", func(ctx context.Context) (MessageHandle, error) {
		return r.next.SendMessage(ctx, channelID, content)
	})
	if err == nil {
		r.remember(h, content)
	}
	return h, err
}

// EditMessage skips edits that would not change what the message shows.
func (r *Resilient) EditMessage(ctx context.Context, handle MessageHandle, content Content) error {
	sum := fingerprint(content)
	r.mu.Lock()
	prev, seen := r.edits[handle]
	r.mu.Unlock()
	if seen && prev == sum {
		return nil
	}
	_, err := call(ctx, r, "edit", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.next.EditMessage(ctx, handle, content)
	})
	if err == nil {
		r.remember(handle, content)
	}
	return err
}

func (r *Resilient) FetchMessage(ctx context.Context, handle MessageHandle) (Content, error) {
	return call(ctx, r, "fetch", func(ctx context.Context) (Content, error) {
		return r.next.FetchMessage(ctx, handle)
	})
}

// OpenPrivateInterface is not retried once the prompt is on screen; only
// the user can answer it.
func (r *Resilient) OpenPrivateInterface(ctx context.Context, userID string, prompt Prompt) (Selection, error) {
	if err := r.limiter(BucketFrom(ctx)).Wait(ctx); err != nil {
		return Selection{}, err
	}
	return r.next.OpenPrivateInterface(ctx, userID, prompt)
}

func (r *Resilient) RegisterButton(prefix string, fn ButtonHandler) {
	r.next.RegisterButton(prefix, fn)
}

func (r *Resilient) CreateThread(ctx context.Context, channelID, name string) (ThreadHandle, error) {
	return call(ctx, r, "thread", func(ctx context.Context) (ThreadHandle, error) {
		return r.next.CreateThread(ctx, channelID, name)
	})
}

// Forget drops the edit history of a message that is no longer updated.
func (r *Resilient) Forget(handle MessageHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.edits, handle)
}

// ForgetBuckets drops the limiters of every bucket starting with prefix.
func (r *Resilient) ForgetBuckets(prefix string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for bucket := range r.limiters {
		if strings.HasPrefix(bucket, prefix) {
			delete(r.limiters, bucket)
		}
	}
}

func (r *Resilient) remember(h MessageHandle, c Content) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.edits[h] = fingerprint(c)
}

func fingerprint(c Content) [32]byte {
	var b strings.Builder
	b.WriteString(c.Text)
	for _, btn := range c.Buttons {
		fmt.Fprintf(&b, "\x00%s\x01%s\x01%d\x01%t", btn.ID, btn.Label, btn.Style, btn.Disabled)
	}
	return blake2b.Sum256([]byte(b.String()))
}

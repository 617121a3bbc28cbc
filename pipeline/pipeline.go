// Package pipeline orchestrates one poll cycle: fetch the feed, diff
// against the sent-item store, compose and deliver new entries, and record
// what was delivered.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/scipunch/feedgram/compose"
	"github.com/scipunch/feedgram/feed"
	"github.com/scipunch/feedgram/filter"
	"github.com/scipunch/feedgram/store"
	"github.com/scipunch/feedgram/telegram"
)

// ErrAlreadyRunning reports that a poll cycle is still in flight. Cycles
// never overlap; the caller should wait for the next scheduled run.
var ErrAlreadyRunning = errors.New("poll cycle already running")

const (
	defaultSendPause   = time.Second
	defaultSendTimeout = time.Minute
)

// Fetcher obtains normalized feed entries in feed-native order.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]feed.Entry, error)
}

// Sender delivers one message to a destination chat. An over-length
// rejection must satisfy errors.Is(err, telegram.ErrOversize) so the
// pipeline can fall back to the short form.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string, disablePreview bool) error
}

// EntryError is a per-entry delivery failure.
type EntryError struct {
	EntryID string
	Err     error
}

// Result summarizes one poll cycle for logging and observability.
type Result struct {
	Attempted       int
	Delivered       int
	SkippedExisting int
	Errors          []EntryError
}

// Config wires a pipeline's collaborators and policy values.
type Config struct {
	FeedURL  string
	Store    store.Store
	Fetcher  Fetcher
	Sender   Sender
	Composer compose.Composer
	Filter   *filter.Filter // optional

	// SendPause is the delay between successive sends, respecting the
	// destination's burst-rate tolerance.
	SendPause time.Duration
	// SendTimeout bounds each individual send call.
	SendTimeout time.Duration
}

// Pipeline runs deduplication-aware delivery cycles. Exactly one cycle
// touches the store at a time.
type Pipeline struct {
	feedURL     string
	store       store.Store
	fetcher     Fetcher
	sender      Sender
	composer    compose.Composer
	filter      *filter.Filter
	sendPause   time.Duration
	sendTimeout time.Duration

	running atomic.Bool

	mu     sync.Mutex // guards chatID, written by the bootstrap handler
	chatID int64
}

// New creates a pipeline. The store must already be loaded.
func New(cfg Config) *Pipeline {
	p := &Pipeline{
		feedURL:     cfg.FeedURL,
		store:       cfg.Store,
		fetcher:     cfg.Fetcher,
		sender:      cfg.Sender,
		composer:    cfg.Composer,
		filter:      cfg.Filter,
		sendPause:   cfg.SendPause,
		sendTimeout: cfg.SendTimeout,
	}
	if p.sendPause <= 0 {
		p.sendPause = defaultSendPause
	}
	if p.sendTimeout <= 0 {
		p.sendTimeout = defaultSendTimeout
	}
	return p
}

// SetDestination records the chat to deliver to. The first caller wins:
// a preconfigured destination is never overridden by a later bootstrap
// interaction.
func (p *Pipeline) SetDestination(chatID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.chatID != 0 {
		return
	}
	p.chatID = chatID
	slog.Info("destination chat set", "chat_id", chatID)
}

// Destination returns the active destination chat id, or 0 when none has
// been configured or bootstrapped yet.
func (p *Pipeline) Destination() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.chatID
}

// RunPollCycle executes one fetch, diff and deliver cycle and reports what
// happened. Feed failures abort the cycle and are returned; per-entry
// delivery failures are collected in the result, and the corresponding ids
// stay unrecorded so the next cycle retries them.
func (p *Pipeline) RunPollCycle(ctx context.Context) (Result, error) {
	if !p.running.CompareAndSwap(false, true) {
		return Result{}, ErrAlreadyRunning
	}
	defer p.running.Store(false)

	var res Result

	chatID := p.Destination()
	if chatID == 0 {
		slog.Warn("no destination chat configured and no /start received yet, skipping poll")
		return res, nil
	}

	slog.Info("checking feed", "url", p.feedURL)
	entries, err := p.fetcher.Fetch(ctx, p.feedURL)
	if err != nil {
		return res, fmt.Errorf("poll cycle aborted: %w", err)
	}

	// The feed lists newest first; walk it backwards so a batch of new
	// entries arrives in chronological order.
	for i := len(entries) - 1; i >= 0; i-- {
		select {
		case <-ctx.Done():
			slog.Info("poll cycle interrupted, stopping after current send")
			return res, ctx.Err()
		default:
		}

		e := entries[i]
		if p.store.Contains(e.ID) {
			res.SkippedExisting++
			continue
		}
		if p.filter != nil {
			if ok, reason := p.filter.ShouldInclude(e); !ok {
				slog.Debug("entry filtered out", "title", e.Title, "reason", reason)
				continue
			}
		}

		res.Attempted++
		slog.Info("new entry found", "title", e.Title, "id", e.ID)

		if res.Attempted > 1 {
			if !p.pause(ctx) {
				return res, ctx.Err()
			}
		}
		p.deliver(ctx, chatID, e, &res)
	}

	if res.Delivered > 0 {
		slog.Info("sent new entries", "delivered", res.Delivered, "chat_id", chatID)
	} else {
		slog.Info("no new entries in this check")
	}
	return res, nil
}

// deliver sends the full form, falling back to the short form when the
// transport rejects it as over-length. The id is recorded only after a
// successful send.
func (p *Pipeline) deliver(ctx context.Context, chatID int64, e feed.Entry, res *Result) {
	msg := p.composer.Compose(e)
	err := p.send(ctx, chatID, msg.Text)
	if err == nil {
		p.record(ctx, e.ID, res)
		return
	}

	if errors.Is(err, telegram.ErrOversize) {
		slog.Warn("message rejected as too long, retrying with short form", "id", e.ID)
		short := p.composer.ComposeShort(e)
		if err := p.send(ctx, chatID, short.Text); err != nil {
			slog.Error("failed to send short form", "id", e.ID, "error", err)
			res.Errors = append(res.Errors, EntryError{EntryID: e.ID, Err: err})
			return
		}
		p.record(ctx, e.ID, res)
		return
	}

	slog.Error("failed to send entry", "id", e.ID, "error", err)
	res.Errors = append(res.Errors, EntryError{EntryID: e.ID, Err: err})
}

// send performs one send attempt. The call is detached from the cycle's
// cancellation so that shutdown lets an in-flight send finish instead of
// aborting it in an ambiguous delivery state; its own timeout keeps it
// bounded.
func (p *Pipeline) send(ctx context.Context, chatID int64, text string) error {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.sendTimeout)
	defer cancel()
	return p.sender.SendMessage(sctx, chatID, text, false)
}

// record marks the entry as delivered. A store failure leaves the delivery
// unconfirmed: the entry is counted as an error and retried next cycle,
// accepting a possible duplicate send over a silent loss.
func (p *Pipeline) record(ctx context.Context, id string, res *Result) {
	rctx := context.WithoutCancel(ctx)
	if err := p.store.Record(rctx, id); err != nil {
		slog.Error("delivered but failed to record sent item", "id", id, "error", err)
		res.Errors = append(res.Errors, EntryError{EntryID: id, Err: err})
		return
	}
	res.Delivered++
}

func (p *Pipeline) pause(ctx context.Context) bool {
	select {
	case <-time.After(p.sendPause):
		return true
	case <-ctx.Done():
		return false
	}
}

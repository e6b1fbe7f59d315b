// Package bot routes inbound Telegram interactions through the admission
// pipeline: rate limit first, then command handling, then the activity hook
// for authenticated users. Ticket conversation flows plug in through the
// CommandHandler extension point; this package only owns the session and
// login surface.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/svcdesk/helpdesk-bot/internal/auth"
	herrors "github.com/svcdesk/helpdesk-bot/internal/errors"
	"github.com/svcdesk/helpdesk-bot/internal/mapping"
	"github.com/svcdesk/helpdesk-bot/internal/metrics"
	"github.com/svcdesk/helpdesk-bot/internal/ratelimit"
	"github.com/svcdesk/helpdesk-bot/internal/session"
	"github.com/svcdesk/helpdesk-bot/internal/telegram"
)

// Sender delivers replies to a chat.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// CommandHandler handles interactions this package does not own (ticket
// creation and viewing flows). Handle returns true if it consumed the event.
type CommandHandler interface {
	Handle(ctx context.Context, ev telegram.Inbound) bool
}

// Bot is the dispatch layer.
type Bot struct {
	limiter  *ratelimit.Limiter
	tracker  *session.Tracker
	monitor  *session.Monitor
	auth     *auth.Service
	mappings *mapping.Store
	sender   Sender
	extra    CommandHandler
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// New creates the dispatcher. extra may be nil when no ticket flows are
// wired in.
func New(limiter *ratelimit.Limiter, tracker *session.Tracker, monitor *session.Monitor,
	authSvc *auth.Service, mappings *mapping.Store, sender Sender,
	extra CommandHandler, m *metrics.Metrics, logger zerolog.Logger) *Bot {
	return &Bot{
		limiter:  limiter,
		tracker:  tracker,
		monitor:  monitor,
		auth:     authSvc,
		mappings: mappings,
		sender:   sender,
		extra:    extra,
		metrics:  m,
		logger:   logger.With().Str("component", "bot").Logger(),
	}
}

// Run consumes inbound events until the context is cancelled. Each event is
// handled in its own goroutine so a slow backend call cannot stall the
// update stream.
func (b *Bot) Run(ctx context.Context, in <-chan telegram.Inbound) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-in:
			if !ok {
				return
			}
			go b.HandleInbound(ctx, ev)
		}
	}
}

// HandleInbound runs one interaction through the full pipeline. Admission
// control runs before anything else, for anonymous and authenticated users
// alike; a rejected request never reaches the handler and therefore never
// counts as activity.
func (b *Bot) HandleInbound(ctx context.Context, ev telegram.Inbound) {
	logger := b.logger.With().
		Str("request_id", uuid.NewString()).
		Int64("user_id", ev.UserID).
		Logger()

	if !b.limiter.Allow(ev.UserID) {
		b.metrics.RateLimitedTotal.Inc()
		logger.Warn().Msg("rate limited")
		b.reply(ctx, ev.ChatID,
			"Too many requests. Please wait a moment before trying again.")
		return
	}

	b.dispatch(ctx, ev, logger)

	// Activity hook: only established sessions extend their own lifetime.
	if b.auth.ValidateSession(ev.UserID) {
		b.tracker.Track(ev.UserID)
	}
}

func (b *Bot) dispatch(ctx context.Context, ev telegram.Inbound, logger zerolog.Logger) {
	text := strings.TrimSpace(ev.Text)

	if !strings.HasPrefix(text, "/") {
		if b.extra != nil && b.extra.Handle(ctx, ev) {
			return
		}
		b.reply(ctx, ev.ChatID, "Send /help to see what I can do.")
		return
	}

	fields := strings.Fields(text)
	command, args := fields[0], fields[1:]
	b.metrics.RecordCommand(command)
	logger.Debug().Str("command", command).Msg("command received")

	switch command {
	case "/start":
		b.handleStart(ctx, ev)
	case "/help":
		b.reply(ctx, ev.ChatID, helpText)
	case "/login":
		b.handleLogin(ctx, ev, args, logger)
	case "/me":
		b.handleQuickLogin(ctx, ev, logger)
	case "/remember":
		b.handleRemember(ctx, ev, logger)
	case "/forget":
		b.handleForget(ctx, ev, logger)
	case "/logout":
		b.handleLogout(ctx, ev)
	case "/status":
		b.handleStatus(ctx, ev)
	default:
		if b.extra != nil && b.extra.Handle(ctx, ev) {
			return
		}
		b.reply(ctx, ev.ChatID, "Unknown command. Send /help for the list.")
	}
}

const helpText = "Commands:\n" +
	"/login <email> — sign in with your account email\n" +
	"/me — quick sign-in if you chose to be remembered\n" +
	"/remember — stay signed in on this device for 30 days\n" +
	"/forget — remove the remembered sign-in\n" +
	"/logout — sign out\n" +
	"/status — session status"

func (b *Bot) handleStart(ctx context.Context, ev telegram.Inbound) {
	b.reply(ctx, ev.ChatID,
		"Welcome to the helpdesk bot.\n\n"+helpText)
}

func (b *Bot) handleLogin(ctx context.Context, ev telegram.Inbound, args []string, logger zerolog.Logger) {
	if len(args) != 1 {
		b.reply(ctx, ev.ChatID, "Usage: /login your.email@example.com")
		return
	}

	err := b.auth.Login(ctx, ev.UserID, args[0])
	switch {
	case err == nil:
		b.reply(ctx, ev.ChatID,
			"Signed in. Send /remember if you want to skip this next time.")
	case errors.Is(err, herrors.ErrInvalidInput):
		b.reply(ctx, ev.ChatID, "That does not look like an email address.")
	case errors.Is(err, herrors.ErrAuthFailure):
		b.reply(ctx, ev.ChatID, "No account found for that email.")
	default:
		logger.Error().Err(err).Msg("login failed")
		b.metrics.RecordError("auth", "login")
		b.reply(ctx, ev.ChatID, "Something went wrong, please try again.")
	}
}

// handleQuickLogin is the remember-me path: a mapping hit establishes the
// session without a backend round-trip and slides the mapping's expiry.
func (b *Bot) handleQuickLogin(ctx context.Context, ev telegram.Inbound, logger zerolog.Logger) {
	if b.auth.ValidateSession(ev.UserID) {
		b.reply(ctx, ev.ChatID, "You are already signed in.")
		return
	}

	email, err := b.mappings.Lookup(ctx, ev.UserID)
	switch {
	case err == nil:
		if qerr := b.auth.QuickLogin(ev.UserID, email); qerr != nil {
			logger.Error().Err(qerr).Msg("quick login failed")
			b.reply(ctx, ev.ChatID, "Something went wrong, please try again.")
			return
		}
		b.metrics.RecordQuickLogin("hit")
		b.reply(ctx, ev.ChatID, fmt.Sprintf("Welcome back, signed in as %s.", email))
	case errors.Is(err, herrors.ErrNotFound):
		b.metrics.RecordQuickLogin("miss")
		b.reply(ctx, ev.ChatID,
			"No remembered sign-in found. Use /login <email> first.")
	default:
		// Storage trouble survived the retries; never leak the detail.
		logger.Error().Err(err).Msg("mapping lookup failed")
		b.metrics.RecordQuickLogin("error")
		b.metrics.RecordError("mapping", "lookup")
		b.reply(ctx, ev.ChatID, "Something went wrong, please try again.")
	}
}

func (b *Bot) handleRemember(ctx context.Context, ev telegram.Inbound, logger zerolog.Logger) {
	sess, ok := b.auth.UserSession(ev.UserID)
	if !ok {
		b.reply(ctx, ev.ChatID, "Sign in with /login first.")
		return
	}

	if err := b.mappings.Save(ctx, ev.UserID, sess.Email, ev.Username); err != nil {
		logger.Error().Err(err).Msg("mapping save failed")
		b.metrics.RecordError("mapping", "save")
		b.reply(ctx, ev.ChatID, "Something went wrong, please try again.")
		return
	}
	b.reply(ctx, ev.ChatID,
		"Done. /me signs you back in on this device for the next 30 days.")
}

func (b *Bot) handleForget(ctx context.Context, ev telegram.Inbound, logger zerolog.Logger) {
	err := b.mappings.Deactivate(ctx, ev.UserID)
	switch {
	case err == nil:
		b.reply(ctx, ev.ChatID, "Remembered sign-in removed.")
	case errors.Is(err, herrors.ErrNotFound):
		b.reply(ctx, ev.ChatID, "Nothing to forget.")
	default:
		logger.Error().Err(err).Msg("mapping deactivate failed")
		b.metrics.RecordError("mapping", "deactivate")
		b.reply(ctx, ev.ChatID, "Something went wrong, please try again.")
	}
}

func (b *Bot) handleLogout(ctx context.Context, ev telegram.Inbound) {
	if !b.auth.ValidateSession(ev.UserID) {
		b.reply(ctx, ev.ChatID, "You are not signed in.")
		return
	}
	_ = b.auth.RevokeSession(ev.UserID)
	b.tracker.Remove(ev.UserID)
	b.reply(ctx, ev.ChatID, "Signed out. See you next time.")
}

func (b *Bot) handleStatus(ctx context.Context, ev telegram.Inbound) {
	st := b.monitor.Status()
	signedIn := b.auth.ValidateSession(ev.UserID)

	text := fmt.Sprintf(
		"Signed in: %v\nTracked sessions: %d\nWarned sessions: %d\nMonitor running: %v",
		signedIn, st.Tracked, st.Warned, st.Running)
	if idle, ok := b.tracker.IdleFor(ev.UserID); ok {
		text += fmt.Sprintf("\nYour idle time: %s", idle.Round(time.Second))
	}
	b.reply(ctx, ev.ChatID, text)
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if err := b.sender.Send(ctx, chatID, text); err != nil {
		b.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("reply not delivered")
		b.metrics.NotifyFailures.Inc()
	}
}

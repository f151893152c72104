// Package presenter turns incoming push payloads into display commands for the host OS.
package presenter

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

const (
	DefaultTitle = "New Task Assigned"
	DefaultBody  = "You have a new task!"
)

// Payload is the display part of an incoming push message. Nil fields were absent.
type Payload struct {
	Title *string
	Body  *string
	Data  map[string]string
}

// Command is what the host adapter shows.
type Command struct {
	ID         int64
	ChannelID  string
	Title      string
	Body       string
	Icon       int
	AutoCancel bool
	Data       map[string]string
}

// Notifier is the OS surface that renders a Command.
type Notifier interface {
	Notify(ctx context.Context, cmd Command) error
}

// IconResolver maps a named icon resource to its id.
type IconResolver interface {
	Lookup(name string) (id int, ok bool)
	// AppIcon is the host application's icon, used when Lookup misses.
	AppIcon() int
}

// IDSource yields notification ids; consecutive calls never repeat.
type IDSource interface {
	Next() int64
}

// ClockIDs issues millisecond timestamps, bumped when the clock has not advanced.
type ClockIDs struct {
	last atomic.Int64
	now  func() time.Time
}

func NewClockIDs() *ClockIDs {
	return &ClockIDs{now: time.Now}
}

func (c *ClockIDs) Next() int64 {
	for {
		prev := c.last.Load()
		next := c.now().UnixMilli()
		if next <= prev {
			next = prev + 1
		}
		if c.last.CompareAndSwap(prev, next) {
			return next
		}
	}
}

// Config holds presenter defaults.
type Config struct {
	DefaultTitle string
	DefaultBody  string
	IconName     string
	Channel      Channel
}

// DefaultConfig mirrors the task-assignment notifications of the mobile app.
func DefaultConfig() Config {
	return Config{
		DefaultTitle: DefaultTitle,
		DefaultBody:  DefaultBody,
		IconName:     "ic_notification",
		Channel:      TaskChannel(),
	}
}

// Presenter composes and shows notifications.
type Presenter struct {
	cfg      Config
	channels ChannelRegistry
	icons    IconResolver
	ids      IDSource
	notifier Notifier
	logger   *slog.Logger
}

// New builds a Presenter. Empty Config fields fall back to DefaultConfig.
func New(cfg Config, channels ChannelRegistry, icons IconResolver, ids IDSource, notifier Notifier, logger *slog.Logger) *Presenter {
	def := DefaultConfig()
	if cfg.DefaultTitle == "" {
		cfg.DefaultTitle = def.DefaultTitle
	}
	if cfg.DefaultBody == "" {
		cfg.DefaultBody = def.DefaultBody
	}
	if cfg.IconName == "" {
		cfg.IconName = def.IconName
	}
	if cfg.Channel.ID == "" {
		cfg.Channel = def.Channel
	}
	if ids == nil {
		ids = NewClockIDs()
	}
	return &Presenter{
		cfg:      cfg,
		channels: channels,
		icons:    icons,
		ids:      ids,
		notifier: notifier,
		logger:   logger.With("component", "NotificationPresenter"),
	}
}

// Compose builds the Command for payload without touching the OS.
func (p *Presenter) Compose(payload Payload) Command {
	title := p.cfg.DefaultTitle
	if payload.Title != nil {
		title = *payload.Title
	}
	body := p.cfg.DefaultBody
	if payload.Body != nil {
		body = *payload.Body
	}

	return Command{
		ID:         p.ids.Next(),
		ChannelID:  p.cfg.Channel.ID,
		Title:      title,
		Body:       body,
		Icon:       p.resolveIcon(),
		AutoCancel: true,
		Data:       payload.Data,
	}
}

// Present ensures the channel exists, composes the command and hands it to the notifier.
// A channel failure is logged and display continues.
func (p *Presenter) Present(ctx context.Context, payload Payload) (Command, error) {
	if p.channels != nil {
		if err := p.channels.EnsureChannel(ctx, p.cfg.Channel); err != nil {
			p.logger.Warn("Failed to ensure notification channel", "channel", p.cfg.Channel.ID, "err", err)
		}
	}

	cmd := p.Compose(payload)
	if err := p.notifier.Notify(ctx, cmd); err != nil {
		p.logger.Error("Failed to display notification", "id", cmd.ID, "err", err)
		return cmd, err
	}
	p.logger.Debug("Notification displayed", "id", cmd.ID, "channel", cmd.ChannelID)
	return cmd, nil
}

func (p *Presenter) resolveIcon() int {
	if p.icons == nil {
		return 0
	}
	if id, ok := p.icons.Lookup(p.cfg.IconName); ok && id != 0 {
		return id
	}
	return p.icons.AppIcon()
}

// StaticIcons is a fixed IconResolver.
type StaticIcons struct {
	Named map[string]int
	App   int
}

func (s StaticIcons) Lookup(name string) (int, bool) {
	id, ok := s.Named[name]
	return id, ok
}

func (s StaticIcons) AppIcon() int { return s.App }

package presenter

import (
	"context"
	"errors"
	"sync"
)

// Importance mirrors the OS notification importance levels.
type Importance int

const (
	ImportanceLow Importance = iota + 1
	ImportanceDefault
	ImportanceHigh
)

// Channel describes a notification category.
type Channel struct {
	ID           string
	Name         string
	Description  string
	Importance   Importance
	EnableLights bool
	LightColor   string
}

// TaskChannel is the channel used for task assignment notifications.
func TaskChannel() Channel {
	return Channel{
		ID:           "task_channel",
		Name:         "Task Notifications",
		Description:  "Notifications for task assignments",
		Importance:   ImportanceDefault,
		EnableLights: true,
		LightColor:   "#0000FF",
	}
}

// ErrInvalidChannel is returned for a channel without an id.
var ErrInvalidChannel = errors.New("notification channel id is required")

// ChannelRegistry creates channels. EnsureChannel must be safe to call repeatedly.
type ChannelRegistry interface {
	EnsureChannel(ctx context.Context, ch Channel) error
}

// MemoryChannels is an in-process ChannelRegistry. Re-creating a channel with
// the same definition is a no-op; a changed definition replaces the stored one.
type MemoryChannels struct {
	mu       sync.Mutex
	channels map[string]Channel
	writes   int
}

func NewMemoryChannels() *MemoryChannels {
	return &MemoryChannels{channels: make(map[string]Channel)}
}

func (m *MemoryChannels) EnsureChannel(_ context.Context, ch Channel) error {
	if ch.ID == "" {
		return ErrInvalidChannel
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.channels[ch.ID]; ok && existing == ch {
		return nil
	}
	m.channels[ch.ID] = ch
	m.writes++
	return nil
}

// Channels returns a snapshot of the registered channels.
func (m *MemoryChannels) Channels() []Channel {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Channel, 0, len(m.channels))
	for _, ch := range m.channels {
		out = append(out, ch)
	}
	return out
}

// Writes counts calls that changed the registry.
func (m *MemoryChannels) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/leapstack-labs/workbench/pkg/core"
)

// CodecConfig holds the collaborators of a Codec.
type CodecConfig struct {
	Storage core.Storage
	Clock   core.Clock
	Logger  *slog.Logger
	MaxTabs int
	NewID   func() string
}

// Codec loads and saves sessions through a core.Storage.
// Storage failures are logged and swallowed; in-memory state stays authoritative.
type Codec struct {
	storage core.Storage
	clock   core.Clock
	logger  *slog.Logger
	maxTabs int
	newID   func() string
}

// NewCodec creates a codec. Storage defaults to a MemoryStore.
func NewCodec(cfg CodecConfig) *Codec {
	c := &Codec{
		storage: cfg.Storage,
		clock:   cfg.Clock,
		logger:  cfg.Logger,
		maxTabs: cfg.MaxTabs,
		newID:   cfg.NewID,
	}
	if c.storage == nil {
		c.storage = NewMemoryStore()
	}
	if c.clock == nil {
		c.clock = core.SystemClock{}
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	if c.maxTabs <= 0 {
		c.maxTabs = DefaultMaxTabs
	}
	if c.newID == nil {
		c.newID = newID
	}
	return c
}

func newID() string {
	return uuid.New().String()
}

// Load returns the workspace's session, migrating a legacy record when no
// current-version record exists. It returns nil when nothing usable is stored.
func (c *Codec) Load(workspaceID string) *Session {
	log := c.logger.With("workspace_id", workspaceID)

	data, found, err := c.storage.Get(Key(workspaceID))
	if err != nil {
		log.Debug("failed to read session record", "error", err)
		return nil
	}
	if found {
		s, err := Sanitize(data, SanitizeOptions{MaxTabs: c.maxTabs, NewID: c.newID})
		if err == nil {
			return s
		}
		log.Debug("discarding session record", "error", err)
	}

	return c.migrateLegacy(workspaceID, log)
}

func (c *Codec) migrateLegacy(workspaceID string, log *slog.Logger) *Session {
	data, found, err := c.storage.Get(LegacyKey)
	if err != nil {
		log.Debug("failed to read legacy record", "error", err)
		return nil
	}
	if !found {
		return nil
	}

	s, err := MigrateLegacy(data, c.newID(), c.clock.Now())
	if err != nil {
		log.Debug("discarding legacy record", "error", err)
		return nil
	}

	if err := c.write(workspaceID, s); err != nil {
		log.Debug("failed to persist migrated session", "error", err)
		return s
	}
	if err := c.storage.Remove(LegacyKey); err != nil {
		log.Debug("failed to remove legacy record", "error", err)
	}
	log.Info("migrated legacy session", "tab_id", s.ActiveTabID)
	return s
}

// Save writes the full current-version record. Failures are logged, never returned.
func (c *Codec) Save(workspaceID string, s *Session) {
	if s == nil {
		return
	}
	if err := c.write(workspaceID, s); err != nil {
		c.logger.Debug("failed to save session", "workspace_id", workspaceID, "error", err)
	}
}

// Clear removes the workspace's session record.
func (c *Codec) Clear(workspaceID string) {
	if err := c.storage.Remove(Key(workspaceID)); err != nil {
		c.logger.Debug("failed to clear session", "workspace_id", workspaceID, "error", err)
	}
}

func (c *Codec) write(workspaceID string, s *Session) error {
	data, err := Encode(s)
	if err != nil {
		return err
	}
	return c.storage.Set(Key(workspaceID), data)
}

// Encode serializes a session as a current-version record.
func Encode(s *Session) ([]byte, error) {
	if s == nil {
		return nil, errors.New("nil session")
	}
	out := *s
	out.Version = CurrentVersion
	if out.Tabs == nil {
		out.Tabs = []TabRecord{}
	}
	data, err := json.Marshal(&out)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session: %w", err)
	}
	return data, nil
}

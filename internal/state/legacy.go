package state

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/leapstack-labs/workbench/pkg/core"
)

// MigrateLegacy converts a legacy single-buffer record into a one-tab
// current-version session. Legacy "model" and "preview" modes collapse to a
// bound-model tab when a model was selected; everything else is raw SQL.
func MigrateLegacy(data []byte, id string, now time.Time) (*Session, error) {
	var legacy LegacyRecord
	if err := json.Unmarshal(data, &legacy); err != nil {
		return nil, fmt.Errorf("failed to decode legacy record: %w", err)
	}

	tab := TabRecord{
		ID:         id,
		Title:      DefaultTitle(1),
		Mode:       core.TabModeRawSQL,
		Text:       legacy.SQLText,
		LastUsedAt: now.UTC(),
	}

	model := ""
	if legacy.SelectedModelID != nil {
		model = strings.TrimSpace(*legacy.SelectedModelID)
	}
	switch strings.ToLower(legacy.Mode) {
	case "model", "preview":
		if model != "" {
			tab.Mode = core.TabModeBoundModel
			tab.BoundModelID = model
			tab.Title = ModelTitle(model)
		}
	}

	s := &Session{
		Version:           CurrentVersion,
		Tabs:              []TabRecord{tab},
		ActiveTabID:       tab.ID,
		EditorTheme:       core.EditorTheme(legacy.EditorTheme),
		ActiveBottomPanel: core.DefaultPanel,
		Layout:            core.DefaultLayout(),
	}
	if !s.EditorTheme.Valid() {
		s.EditorTheme = core.DefaultTheme
	}
	if legacy.EnvironmentID != nil && *legacy.EnvironmentID != "" {
		env := *legacy.EnvironmentID
		s.EnvironmentID = &env
	}
	return s, nil
}

// ModelTitle derives a tab title from a model unique id such as "model.orders".
func ModelTitle(modelID string) string {
	if i := strings.LastIndex(modelID, "."); i >= 0 && i < len(modelID)-1 {
		return modelID[i+1:]
	}
	return modelID
}

package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeTickCommitted is emitted after a tick's scene is committed.
	EventTypeTickCommitted = "chronicle.tick.committed"
)

// TickCommittedEvent is a transport-neutral event payload for a committed tick.
type TickCommittedEvent struct {
	SchemaVersion int       `json:"schema_version"`
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EmittedAt     time.Time `json:"emitted_at"`
	Project       string    `json:"project,omitempty"`
	Tick          int       `json:"tick"`
	SceneID       string    `json:"scene_id"`
	Fallbacks     []string  `json:"fallbacks,omitempty"`
	LoreIDs       []string  `json:"lore_ids,omitempty"`
	BeatID        string    `json:"beat_id,omitempty"`
}

// NewTickCommittedEvent stamps a new event with a fresh ID and the current time.
func NewTickCommittedEvent(project string, tick int, sceneID string) *TickCommittedEvent {
	return &TickCommittedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeTickCommitted,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Project:       project,
		Tick:          tick,
		SceneID:       sceneID,
	}
}

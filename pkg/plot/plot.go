// Package plot tracks the ordered backlog of plot beats.
package plot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/papercomputeco/chronicle/pkg/recall"
	"github.com/papercomputeco/chronicle/pkg/stage"
	"github.com/papercomputeco/chronicle/pkg/store"
	"github.com/papercomputeco/chronicle/pkg/world"
)

var (
	// ErrInvalidTransition is returned when a beat is not pending.
	ErrInvalidTransition = errors.New("invalid beat transition")

	// ErrSkipNotAllowed is returned by MarkSkipped when skipping is disabled.
	ErrSkipNotAllowed = errors.New("beat skipping is not allowed")
)

// Config configures a Tracker.
type Config struct {
	Generator stage.Generator

	// AllowSkip permits MarkSkipped.
	AllowSkip bool

	Logger *zap.Logger
}

// Tracker manages plot beats. Beats are ordered by ID sequence, so the
// earliest created pending beat is always next.
type Tracker struct {
	generator stage.Generator
	allowSkip bool
	logger    *zap.Logger
}

// New creates a Tracker.
func New(c Config) *Tracker {
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{generator: c.Generator, allowSkip: c.AllowSkip, logger: logger}
}

// Pending returns every pending beat, earliest first.
func (t *Tracker) Pending(r store.Reader) []*world.PlotBeat {
	return store.ListAs[*world.PlotBeat](r, world.KindBeat, func(e world.Entity) bool {
		return e.(*world.PlotBeat).Status == world.BeatPending
	})
}

// NextPending returns the earliest pending beat, or nil.
func (t *Tracker) NextPending(r store.Reader) *world.PlotBeat {
	pending := t.Pending(r)
	if len(pending) == 0 {
		return nil
	}
	return pending[0]
}

// GenerateNext asks the generator for count beats and appends them to the
// backlog as pending. References to characters or locations that do not
// exist are dropped from the drafts. Every draft is checked before the first
// beat is staged, so a malformed draft stages none. It returns the created
// beat IDs.
func (t *Tracker) GenerateNext(ctx context.Context, tx *store.Tx, packet *recall.Packet, count int) ([]string, error) {
	if count <= 0 {
		return nil, nil
	}
	if t.generator == nil {
		return nil, fmt.Errorf("%w: no generator configured", stage.ErrGeneration)
	}

	resp, err := t.generator.Generate(ctx, stage.Request{
		Stage:        stage.Outline,
		Context:      t.outlineContext(tx, packet),
		Instructions: fmt.Sprintf("Propose exactly %d new plot beats that follow the pending ones, in the order they should happen.", count),
	})
	if err != nil {
		return nil, err
	}
	if resp == nil || len(resp.Beats) == 0 {
		return nil, fmt.Errorf("%w: outline returned no beats", stage.ErrMalformed)
	}

	drafts := resp.Beats
	if len(drafts) > count {
		drafts = drafts[:count]
	}

	beats := make([]*world.PlotBeat, 0, len(drafts))
	for _, d := range drafts {
		beat := t.fromDraft(tx, d)
		if beat == nil {
			continue
		}
		if err := beat.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", stage.ErrMalformed, err)
		}
		beats = append(beats, beat)
	}

	ids := make([]string, 0, len(beats))
	for _, beat := range beats {
		id, err := tx.Create(beat)
		if err != nil {
			return ids, fmt.Errorf("creating beat: %w", err)
		}
		ids = append(ids, id)
	}

	t.logger.Info("generated plot beats",
		zap.Int("requested", count),
		zap.Strings("beat_ids", ids),
	)
	return ids, nil
}

func (t *Tracker) fromDraft(r store.Reader, d stage.BeatDraft) *world.PlotBeat {
	desc := strings.TrimSpace(d.Description)
	if desc == "" {
		return nil
	}

	beat := &world.PlotBeat{
		Description:   desc,
		TensionTarget: min(max(d.TensionTarget, 0), 10),
		Status:        world.BeatPending,
	}

	seen := make(map[string]bool)
	for _, id := range d.RequiredCharacters {
		if seen[id] {
			continue
		}
		seen[id] = true
		if _, err := store.GetAs[*world.Character](r, id); err != nil {
			t.logger.Debug("dropping unknown beat character", zap.String("id", id))
			continue
		}
		beat.RequiredCharacters = append(beat.RequiredCharacters, id)
	}

	if d.RequiredLocation != "" {
		if _, err := store.GetAs[*world.Location](r, d.RequiredLocation); err == nil {
			beat.RequiredLocation = d.RequiredLocation
		} else {
			t.logger.Debug("dropping unknown beat location", zap.String("id", d.RequiredLocation))
		}
	}

	return beat
}

func (t *Tracker) outlineContext(r store.Reader, packet *recall.Packet) string {
	var b strings.Builder
	if packet != nil {
		b.WriteString(packet.Render(world.AudiencePlanning))
		b.WriteString("\n")
	}

	b.WriteString("## Characters\n")
	for _, c := range store.ListAs[*world.Character](r, world.KindCharacter, nil) {
		fmt.Fprintf(&b, "- %s (%s)\n", c.FullName(), c.ID)
	}
	b.WriteString("\n## Locations\n")
	for _, l := range store.ListAs[*world.Location](r, world.KindLocation, nil) {
		fmt.Fprintf(&b, "- %s (%s)\n", l.Name, l.ID)
	}

	pending := t.Pending(r)
	b.WriteString("\n## Pending beats\n")
	if len(pending) == 0 {
		b.WriteString("None.\n")
	}
	for _, p := range pending {
		fmt.Fprintf(&b, "- [%s] %s (tension %d)\n", p.ID, p.Description, p.TensionTarget)
	}
	return b.String()
}

// MarkComplete transitions a pending beat to completed. A beat completes at
// most once.
func (t *Tracker) MarkComplete(tx *store.Tx, id, sceneID, notes string) error {
	beat, err := store.GetAs[*world.PlotBeat](tx, id)
	if err != nil {
		return err
	}
	if beat.Status != world.BeatPending {
		return fmt.Errorf("%w: %s is %s, cannot complete", ErrInvalidTransition, id, beat.Status)
	}

	return tx.Update(id, world.Patch{
		"status":            string(world.BeatCompleted),
		"executed_in_scene": sceneID,
		"execution_notes":   notes,
	})
}

// MarkSkipped transitions a pending beat to skipped when skipping is allowed.
func (t *Tracker) MarkSkipped(tx *store.Tx, id, reason string) error {
	if !t.allowSkip {
		return ErrSkipNotAllowed
	}

	beat, err := store.GetAs[*world.PlotBeat](tx, id)
	if err != nil {
		return err
	}
	if beat.Status != world.BeatPending {
		return fmt.Errorf("%w: %s is %s, cannot skip", ErrInvalidTransition, id, beat.Status)
	}

	return tx.Update(id, world.Patch{
		"status":          string(world.BeatSkipped),
		"execution_notes": reason,
	})
}

// Package recall assembles the bounded context packet handed to the stage
// generator for one tick.
package recall

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/papercomputeco/chronicle/pkg/index"
	"github.com/papercomputeco/chronicle/pkg/store"
	"github.com/papercomputeco/chronicle/pkg/tokens"
	"github.com/papercomputeco/chronicle/pkg/vector"
	"github.com/papercomputeco/chronicle/pkg/world"
)

const (
	DefaultMaxTokens      = 2000
	DefaultTopK           = 8
	DefaultTensionHistory = 5
)

// ErrNoEntityIndex degrades every packet of an Assembler built without an
// entity index.
var ErrNoEntityIndex = errors.New("no entity index configured")

// Searcher is the part of index.Index the assembler needs.
type Searcher interface {
	Search(ctx context.Context, query string, topK int, filter vector.Filter) ([]index.Hit, error)
}

// Config configures an Assembler.
type Config struct {
	// Entities is the entity index used for retrieval. Without one every
	// packet is degraded.
	Entities Searcher

	// Counter counts tokens against MaxTokens. Defaults to tokens.Estimator.
	Counter tokens.Counter

	// MaxTokens bounds the rendered packet.
	MaxTokens int

	// TopK bounds the number of retrieved entities.
	TopK int

	// TensionHistory is the number of recent scenes summarised.
	TensionHistory int

	// TensionGuidance enables the pacing suggestion block.
	TensionGuidance bool

	Logger *zap.Logger
}

// Assembler builds context packets.
type Assembler struct {
	config Config
	logger *zap.Logger
}

// NewAssembler creates an Assembler, filling zero values with defaults.
func NewAssembler(c Config) *Assembler {
	if c.Counter == nil {
		c.Counter = tokens.Estimator
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.TopK <= 0 {
		c.TopK = DefaultTopK
	}
	if c.TensionHistory <= 0 {
		c.TensionHistory = DefaultTensionHistory
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return &Assembler{config: c, logger: c.Logger}
}

// Request describes the tick a packet is built for.
type Request struct {
	Tick           int
	POVCharacterID string
	Intention      string
	PendingBeat    *world.PlotBeat
}

// Identity carries both names of a character (or the single name of a place).
type Identity struct {
	ID          string `json:"id"`
	FullName    string `json:"full_name"`
	DisplayName string `json:"display_name"`
}

// For returns the name appropriate for the audience.
func (i Identity) For(a world.Audience) string {
	if a == world.AudiencePlanning {
		return i.FullName
	}
	return i.DisplayName
}

// Item is one retrieved entity.
type Item struct {
	Entity world.Entity `json:"entity"`
	Score  float32      `json:"score"`
	Tokens int          `json:"tokens"`
}

// Packet is the assembled context for one tick.
type Packet struct {
	Tick      int             `json:"tick"`
	Intention string          `json:"intention,omitempty"`
	POV       *Identity       `json:"pov,omitempty"`
	Entities  []Item          `json:"entities,omitempty"`
	Tension   Tension         `json:"tension"`
	Beat      *world.PlotBeat `json:"beat,omitempty"`

	// Degraded is set when retrieval failed and Entities was left empty.
	Degraded bool   `json:"degraded,omitempty"`
	Reason   string `json:"reason,omitempty"`

	// Tokens is the budgeted size of the packet.
	Tokens int `json:"tokens"`

	names map[string]Identity
}

// Name returns the identity of a character or location by ID, falling back
// to the ID itself.
func (p *Packet) Name(id string, a world.Audience) string {
	if ident, ok := p.names[id]; ok {
		return ident.For(a)
	}
	return id
}

// Assemble builds the packet for req from the reader's state. Retrieval
// failures degrade the packet rather than failing.
func (a *Assembler) Assemble(ctx context.Context, r store.Reader, req Request) (*Packet, error) {
	p := &Packet{
		Tick:      req.Tick,
		Intention: req.Intention,
		Beat:      req.PendingBeat,
		names:     identities(r),
	}

	if req.POVCharacterID != "" {
		c, err := store.GetAs[*world.Character](r, req.POVCharacterID)
		if err != nil {
			return nil, err
		}
		p.POV = &Identity{ID: c.ID, FullName: c.FullName(), DisplayName: c.DisplayName()}
	}

	scores := make([]int, 0, a.config.TensionHistory)
	for _, s := range store.RecentScenes(r, a.config.TensionHistory) {
		scores = append(scores, s.Tension)
	}
	p.Tension = newTension(scores, a.config.TensionGuidance)

	p.Tokens = a.config.Counter.Count(p.Render(world.AudiencePlanning))

	query := a.query(req, p)
	if query == "" {
		return p, nil
	}

	var (
		hits []index.Hit
		err  = ErrNoEntityIndex
	)
	if a.config.Entities != nil {
		hits, err = a.config.Entities.Search(ctx, query, a.config.TopK+2, nil)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, err
		}
		a.logger.Warn("entity retrieval failed, continuing without retrieved entities",
			zap.Int("tick", req.Tick),
			zap.Error(err),
		)
		p.Degraded = true
		p.Reason = err.Error()
		return p, nil
	}

	a.admit(r, p, hits, req)

	a.logger.Debug("assembled context",
		zap.Int("tick", req.Tick),
		zap.Int("entities", len(p.Entities)),
		zap.Int("tokens", p.Tokens),
	)

	return p, nil
}

func (a *Assembler) query(req Request, p *Packet) string {
	parts := make([]string, 0, 3)
	if q := strings.TrimSpace(req.Intention); q != "" {
		parts = append(parts, q)
	}
	if req.PendingBeat != nil {
		parts = append(parts, req.PendingBeat.Description)
	}
	if len(parts) == 0 && p.POV != nil {
		parts = append(parts, p.POV.FullName)
	}
	return strings.Join(parts, ". ")
}

// admit adds hits in score order until TopK entities are admitted or the
// next one would exceed the token budget.
func (a *Assembler) admit(r store.Reader, p *Packet, hits []index.Hit, req Request) {
	for _, h := range hits {
		if len(p.Entities) >= a.config.TopK {
			return
		}
		if h.ID == req.POVCharacterID || (req.PendingBeat != nil && h.ID == req.PendingBeat.ID) {
			continue
		}

		e, err := r.Get(h.ID)
		if err != nil {
			// the index can trail the store after a failed post-commit indexing
			continue
		}

		line := p.describe(e, world.AudiencePlanning)
		n := a.config.Counter.Count(line) + 1
		if p.Tokens+n > a.config.MaxTokens {
			return
		}

		p.Entities = append(p.Entities, Item{Entity: e, Score: h.Score, Tokens: n})
		p.Tokens += n
	}
}

func identities(r store.Reader) map[string]Identity {
	names := make(map[string]Identity)
	for _, c := range store.ListAs[*world.Character](r, world.KindCharacter, nil) {
		names[c.ID] = Identity{ID: c.ID, FullName: c.FullName(), DisplayName: c.DisplayName()}
	}
	for _, l := range store.ListAs[*world.Location](r, world.KindLocation, nil) {
		names[l.ID] = Identity{ID: l.ID, FullName: l.Name, DisplayName: l.Name}
	}
	return names
}

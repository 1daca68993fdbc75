package stage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Call is one model invocation.
type Call struct {
	System string
	Prompt string

	// JSON asks the provider for a JSON object response.
	JSON bool
}

// CallFunc is the signature for an LLM inference call.
type CallFunc func(ctx context.Context, c Call) (string, error)

// LLMGenerator implements Generator on top of a CallFunc.
type LLMGenerator struct {
	call   CallFunc
	logger *zap.Logger
}

// NewLLMGenerator creates a generator that prompts call for every stage.
func NewLLMGenerator(call CallFunc, logger *zap.Logger) *LLMGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMGenerator{call: call, logger: logger}
}

// Generate implements Generator.
func (g *LLMGenerator) Generate(ctx context.Context, req Request) (*Response, error) {
	system, ok := systemPrompts[req.Stage]
	if !ok {
		return nil, fmt.Errorf("%w: unknown stage %q", ErrGeneration, req.Stage)
	}

	call := Call{
		System: system,
		Prompt: buildPrompt(req),
		JSON:   req.Stage != Write,
	}

	g.logger.Debug("calling generator",
		zap.String("stage", string(req.Stage)),
		zap.Int("prompt_bytes", len(call.Prompt)),
	)

	out, err := g.call(ctx, call)
	if err != nil {
		return nil, fmt.Errorf("%w: %s stage: %w", ErrGeneration, req.Stage, err)
	}

	resp, err := Parse(req.Stage, out)
	if err != nil {
		g.logger.Debug("generator returned malformed output",
			zap.String("stage", string(req.Stage)),
			zap.Error(err),
		)
		return nil, err
	}
	return resp, nil
}

func buildPrompt(req Request) string {
	var b strings.Builder
	b.WriteString(req.Context)
	if req.Instructions != "" {
		b.WriteString("\n\n## Instructions\n")
		b.WriteString(req.Instructions)
	}
	if schema := schemas[req.Stage]; schema != "" {
		b.WriteString("\n\nReturn ONLY valid JSON, no markdown or extra text, shaped like:\n")
		b.WriteString(schema)
	}
	return b.String()
}

// Parse converts raw generator output for a stage into a Response,
// returning ErrMalformed when required structure is missing.
func Parse(s Stage, out string) (*Response, error) {
	switch s {
	case Write:
		prose := strings.TrimSpace(stripFences(out))
		if prose == "" {
			return nil, fmt.Errorf("%w: empty prose", ErrMalformed)
		}
		return &Response{Prose: prose}, nil

	case Plan:
		var p PlanResult
		if err := decode(out, &p); err != nil {
			return nil, err
		}
		if strings.TrimSpace(p.SceneIntention) == "" {
			return nil, fmt.Errorf("%w: plan has no scene_intention", ErrMalformed)
		}
		for i, a := range p.Actions {
			if strings.TrimSpace(a.Tool) == "" {
				return nil, fmt.Errorf("%w: action %d has no tool", ErrMalformed, i)
			}
		}
		return &Response{Plan: &p}, nil

	case Extract:
		var body struct {
			Records []Record `json:"records"`
		}
		if err := decode(out, &body); err != nil {
			return nil, err
		}
		records := body.Records[:0]
		for _, r := range body.Records {
			if strings.TrimSpace(r.Content) != "" {
				records = append(records, r)
			}
		}
		return &Response{Records: records}, nil

	case Verify:
		var body struct {
			Accomplished *bool  `json:"accomplished"`
			Rationale    string `json:"rationale"`
		}
		if err := decode(out, &body); err != nil {
			return nil, err
		}
		if body.Accomplished == nil {
			return nil, fmt.Errorf("%w: verdict has no accomplished field", ErrMalformed)
		}
		return &Response{Verdict: &Verdict{Accomplished: *body.Accomplished, Rationale: body.Rationale}}, nil

	case Outline:
		var body struct {
			Beats []BeatDraft `json:"beats"`
		}
		if err := decode(out, &body); err != nil {
			return nil, err
		}
		beats := body.Beats[:0]
		for _, b := range body.Beats {
			if strings.TrimSpace(b.Description) == "" {
				continue
			}
			b.TensionTarget = min(max(b.TensionTarget, 0), 10)
			beats = append(beats, b)
		}
		if len(beats) == 0 {
			return nil, fmt.Errorf("%w: outline has no beats", ErrMalformed)
		}
		return &Response{Beats: beats}, nil
	}

	return nil, fmt.Errorf("%w: unknown stage %q", ErrGeneration, s)
}

// decode extracts the outermost JSON object from out, which may be wrapped
// in markdown fences or surrounding text.
func decode(out string, v any) error {
	start := strings.Index(out, "{")
	end := strings.LastIndex(out, "}")
	if start < 0 || end <= start {
		return fmt.Errorf("%w: no JSON object in output", ErrMalformed)
	}
	if err := json.Unmarshal([]byte(out[start:end+1]), v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

func stripFences(out string) string {
	out = strings.TrimSpace(out)
	if !strings.HasPrefix(out, "```") {
		return out
	}
	out = strings.TrimPrefix(out, "```")
	if nl := strings.IndexByte(out, '\n'); nl >= 0 {
		out = out[nl+1:]
	}
	return strings.TrimSuffix(strings.TrimSpace(out), "```")
}

package world

import "fmt"

// Scene is the prose produced by one tick.
type Scene struct {
	Meta

	Tick           int     `json:"tick"`
	POVCharacterID string  `json:"pov_character_id,omitempty"`
	Text           string  `json:"text"`
	WordCount      int     `json:"word_count"`
	Intention      string  `json:"intention,omitempty"`
	PlanRationale  string  `json:"plan_rationale,omitempty"`
	BeatID         string  `json:"beat_id,omitempty"`
	Tension        int     `json:"tension"`
	Quality        Quality `json:"quality"`
}

// Quality holds lexical heuristics computed over scene text.
type Quality struct {
	SentenceCount     int     `json:"sentence_count"`
	AvgSentenceLength float64 `json:"avg_sentence_length"`
	DialogueRatio     float64 `json:"dialogue_ratio"`
	LexicalDiversity  float64 `json:"lexical_diversity"`
}

// Kind implements Entity.
func (s *Scene) Kind() Kind { return KindScene }

// Validate implements Entity.
func (s *Scene) Validate() error {
	switch {
	case s.Text == "":
		return fmt.Errorf("%w: scene has no text", ErrInvalid)
	case s.Tension < 0 || s.Tension > 10:
		return fmt.Errorf("%w: scene tension %d outside 0-10", ErrInvalid, s.Tension)
	}
	return nil
}

// Set implements Entity. Scene prose is immutable once committed.
func (s *Scene) Set(field string, value any) (string, string, error) {
	if field == "tags" {
		return s.setTagsField(value)
	}
	return "", "", UnknownFieldError{Kind: KindScene, Field: field}
}

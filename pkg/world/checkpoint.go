package world

import (
	"fmt"
	"time"
)

// Checkpoint records a snapshot bundle written to the project directory.
type Checkpoint struct {
	Meta

	Tick      int       `json:"tick"`
	Message   string    `json:"message,omitempty"`
	Bundle    string    `json:"bundle"`
	CreatedAt time.Time `json:"created_at"`
}

// Kind implements Entity.
func (c *Checkpoint) Kind() Kind { return KindCheckpoint }

// Validate implements Entity.
func (c *Checkpoint) Validate() error {
	if c.Bundle == "" {
		return fmt.Errorf("%w: checkpoint has no bundle", ErrInvalid)
	}
	return nil
}

// Set implements Entity.
func (c *Checkpoint) Set(field string, value any) (string, string, error) {
	switch field {
	case "message":
		return setString(field, &c.Message, value)
	case "tags":
		return c.setTagsField(value)
	}
	return "", "", UnknownFieldError{Kind: KindCheckpoint, Field: field}
}

package tick

import (
	"errors"

	"github.com/papercomputeco/chronicle/pkg/store"
)

// KindBroken names an action that passes validation and fails when applied.
const KindBroken ActionKind = "test.broken"

// ErrBroken is returned by every KindBroken apply.
var ErrBroken = errors.New("broken action")

type brokenAction struct{}

func (brokenAction) Kind() ActionKind                  { return KindBroken }
func (brokenAction) validate(*validation) error        { return nil }
func (brokenAction) apply(*store.Tx) ([]string, error) { return nil, ErrBroken }

// RegisterBrokenAction adds KindBroken to the action set and returns the func
// that removes it again.
func RegisterBrokenAction() func() {
	registry[KindBroken] = func() Action { return brokenAction{} }
	return func() { delete(registry, KindBroken) }
}

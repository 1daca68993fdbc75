package eventstream

import "errors"

// ErrNilTickEvent indicates a nil tick event payload was provided to a publisher.
var ErrNilTickEvent = errors.New("nil tick event")

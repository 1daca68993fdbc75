package testutils

import (
	"context"
	"errors"

	"github.com/papercomputeco/chronicle/pkg/vector"
	"github.com/papercomputeco/chronicle/pkg/vector/inmemory"
)

// ErrUnavailable is the default error returned by a failing MockVectorDriver.
var ErrUnavailable = errors.New("vector store unavailable")

// MockVectorDriver is an in-memory vector driver whose operations can be
// made to fail.
type MockVectorDriver struct {
	*inmemory.Driver

	// FailQuery makes Query return QueryErr (ErrUnavailable if nil).
	FailQuery bool
	QueryErr  error

	// FailAdd makes Add return ErrUnavailable.
	FailAdd bool
}

func NewMockVectorDriver() *MockVectorDriver {
	return &MockVectorDriver{Driver: inmemory.NewDriver()}
}

func (m *MockVectorDriver) Add(ctx context.Context, docs []vector.Document) error {
	if m.FailAdd {
		return ErrUnavailable
	}
	return m.Driver.Add(ctx, docs)
}

func (m *MockVectorDriver) Query(ctx context.Context, embedding []float32, topK int, filter vector.Filter) ([]vector.QueryResult, error) {
	if m.FailQuery {
		if m.QueryErr != nil {
			return nil, m.QueryErr
		}
		return nil, ErrUnavailable
	}
	return m.Driver.Query(ctx, embedding, topK, filter)
}

var _ vector.Driver = (*MockVectorDriver)(nil)

package source

import (
	"context"

	"github.com/godlewis/process-list/internal/record"
)

// Source produces the complete current record list. Implementations may
// silently skip individual entities they cannot fully read; a returned
// error means the whole batch failed and no usable list was produced.
// Records must carry a non-empty unique id.
type Source interface {
	FetchAll(ctx context.Context) ([]record.Record, error)
}

// Func adapts a plain function to the Source interface.
type Func func(ctx context.Context) ([]record.Record, error)

func (f Func) FetchAll(ctx context.Context) ([]record.Record, error) { return f(ctx) }

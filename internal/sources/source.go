// Package sources defines the contract shared by all visit sources.
package sources

import (
	"context"
	"iter"

	"github.com/starford/waypoint/internal/models"
)

// Source produces visits from one kind of note or reference store.
//
// Visits never fails as a whole: per-item problems are delivered as error
// Results in the stream. Stopping the iteration early releases any work the
// source has in flight.
type Source interface {
	Name() string
	Visits(ctx context.Context) iter.Seq[models.Result]
}

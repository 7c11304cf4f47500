package workflow

import (
	"github.com/daaty/dashboard-mobilidade-urbana-main/models"
)

// PriorityResolver orders data origins.
// Priority: system (1) > import (2) > sheets (3); a lower rank wins.
type PriorityResolver interface {
	// Rank is the primary sort key when choosing a duplicate survivor.
	Rank(origin models.Origin) int

	// MayOverwrite reports whether a record written by incoming may update one
	// currently owned by existing. System and import records are protected:
	// nothing coming through reconciliation touches them.
	MayOverwrite(existing, incoming models.Origin) bool
}

type priorityResolver struct{}

func NewPriorityResolver() PriorityResolver {
	return &priorityResolver{}
}

// unknownRank sorts unrecognized origins after every known one.
const unknownRank = 4

func (p *priorityResolver) Rank(origin models.Origin) int {
	switch origin {
	case models.OriginSystem:
		return 1
	case models.OriginImport:
		return 2
	case models.OriginSheets:
		return 3
	default:
		return unknownRank
	}
}

func (p *priorityResolver) MayOverwrite(existing, incoming models.Origin) bool {
	switch existing {
	case models.OriginSystem, models.OriginImport:
		return false
	case models.OriginSheets:
		return p.Rank(incoming) <= p.Rank(existing)
	default:
		// a record with an unknown origin is not protected, but an unknown
		// incoming origin may not claim it either
		return incoming.IsValid()
	}
}

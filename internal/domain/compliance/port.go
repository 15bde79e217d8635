package compliance

import "context"

// BuildingFetcher port, gates whether an analysis load may proceed
type BuildingFetcher interface {
	FetchBuilding(ctx context.Context, id SubjectID) (*Building, error)
}

// AnalysisFetcher port returning the raw analysis payload.
// Implementations must not impose their own timeout; the call may run arbitrarily long.
type AnalysisFetcher interface {
	FetchAnalysis(ctx context.Context, id SubjectID) ([]byte, error)
}

type buildingKey struct{}

// WithBuilding carries a building already fetched for this load, so collaborators
// further down do not fetch it again.
func WithBuilding(ctx context.Context, b *Building) context.Context {
	if b == nil {
		return ctx
	}
	return context.WithValue(ctx, buildingKey{}, b)
}

// BuildingFromContext returns the building set by WithBuilding
func BuildingFromContext(ctx context.Context) (*Building, bool) {
	b, ok := ctx.Value(buildingKey{}).(*Building)
	return b, ok
}

package ports

import (
	"context"

	"github.com/StarfishJ/SceneSound/internal/core/domain"
)

// AnalysisLog is an append-only audit trail of analyze requests. It is never
// consulted when building results.
type AnalysisLog interface {
	Record(ctx context.Context, rec domain.AnalysisRecord) error
	Recent(ctx context.Context, limit int) ([]domain.AnalysisRecord, error)
}

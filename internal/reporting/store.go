package reporting

import (
	"context"

	"reporting-service/internal/models"
)

// ReportStore persists reports.
type ReportStore interface {
	// FindByExternalID returns nil, nil when no report carries the id.
	FindByExternalID(ctx context.Context, externalID string) (*models.Report, error)
	// Insert ignores report.ID and returns the row with server-assigned fields.
	// A unique violation on external_id is reported as ErrDuplicateExternalID.
	Insert(ctx context.Context, report models.Report) (models.Report, error)
	GetByID(ctx context.Context, id int64) (models.Report, error)
	// LatestByCorridorAndKind returns nil, nil when nothing matches.
	LatestByCorridorAndKind(ctx context.Context, corridorID int64, kind models.ReportKind) (*models.Report, error)
	ListByKind(ctx context.Context, kind models.ReportKind, limit int) ([]models.Report, error)
}

// CorridorLookup reads the corridor a user is assigned to.
type CorridorLookup interface {
	GetAssignedCorridor(ctx context.Context, userID int64) (int64, bool, error)
}

// AudienceResolver computes who hears about a report.
type AudienceResolver interface {
	Resolve(ctx context.Context, report models.Report, ref *models.Point) (*models.RecipientSet, error)
}

// Dispatcher fans one message out to every token of a recipient set.
type Dispatcher interface {
	Dispatch(ctx context.Context, set *models.RecipientSet, msg models.Message) models.DeliveryOutcome
}

// Announcer publishes a report on a fixed channel such as a topic or a feed.
type Announcer interface {
	Announce(ctx context.Context, report models.Report, msg models.Message) error
}

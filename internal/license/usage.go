package license

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

// UsageProvider reports a tenant's current consumption of licensed
// resources.
type UsageProvider interface {
	CurrentUsage(ctx context.Context, tenantID uuid.UUID) (UsageStats, error)
}

type UsageStats struct {
	Cameras       int
	ActiveStreams int
	// Add feature specific usage here if needed
}

// DBUsageProvider counts registered cameras straight from the database.
// ActiveStreams is supplied by the stream lifecycle manager once it is
// constructed; until then (or when left nil) the live-stream count is
// reported as zero, which only ever under-counts and so never blocks an
// operation spuriously.
type DBUsageProvider struct {
	DB            *sql.DB
	ActiveStreams func() int
}

func (p *DBUsageProvider) CurrentUsage(ctx context.Context, tenantID uuid.UUID) (UsageStats, error) {
	var cameras int
	err := p.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cameras WHERE tenant_id = $1`, tenantID).Scan(&cameras)
	if err != nil {
		return UsageStats{}, err
	}

	stats := UsageStats{Cameras: cameras}
	if p.ActiveStreams != nil {
		stats.ActiveStreams = p.ActiveStreams()
	}
	return stats, nil
}

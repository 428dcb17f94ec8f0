package data

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Camera is one registered capture device. Rows are soft-deleted.
type Camera struct {
	ID           uuid.UUID `json:"id"`
	TenantID     uuid.UUID `json:"tenant_id"`
	SiteID       uuid.UUID `json:"site_id"`
	Name         string    `json:"name"`
	IPAddress    net.IP    `json:"ip_address"`
	Port         int       `json:"port"`
	Manufacturer string    `json:"manufacturer,omitempty"`
	Model        string    `json:"model,omitempty"`
	SerialNumber string    `json:"serial_number,omitempty"`
	MacAddress   string    `json:"mac_address,omitempty"`
	// StreamSource is the resource string the capture package dispatches
	// on: a device index, a local file path, or a stream URL. Distinct
	// from IPAddress/Port, which describe the camera's management plane.
	StreamSource string     `json:"stream_source"`
	IsEnabled    bool       `json:"is_enabled"`
	Tags         []string   `json:"tags"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

type CameraModel struct {
	DB DBTX
}

func (m CameraModel) Create(ctx context.Context, c *Camera) error {
	return m.DB.QueryRowContext(ctx, `
		INSERT INTO cameras (
			tenant_id, site_id, name, ip_address, port,
			manufacturer, model, serial_number, mac_address,
			is_enabled, tags, stream_source
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at`,
		c.TenantID, c.SiteID, c.Name, c.IPAddress.String(), c.Port,
		c.Manufacturer, c.Model, c.SerialNumber, c.MacAddress,
		c.IsEnabled, pq.Array(c.Tags), c.StreamSource,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
}

// GetByID does not filter by tenant; it returns tenant_id so the caller
// can enforce its own scope.
func (m CameraModel) GetByID(ctx context.Context, id uuid.UUID) (*Camera, error) {
	var c Camera
	var ipStr string
	var tags []string

	err := m.DB.QueryRowContext(ctx, `
		SELECT id, tenant_id, site_id, name, ip_address, port,
		       manufacturer, model, serial_number, mac_address,
		       is_enabled, tags, stream_source, created_at, updated_at, deleted_at
		FROM cameras
		WHERE id = $1 AND deleted_at IS NULL`, id).Scan(
		&c.ID, &c.TenantID, &c.SiteID, &c.Name, &ipStr, &c.Port,
		&c.Manufacturer, &c.Model, &c.SerialNumber, &c.MacAddress,
		&c.IsEnabled, pq.Array(&tags), &c.StreamSource, &c.CreatedAt, &c.UpdatedAt, &c.DeletedAt)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}

	c.IPAddress = net.ParseIP(ipStr)
	c.Tags = tags
	return &c, nil
}

func (m CameraModel) Update(ctx context.Context, c *Camera) error {
	err := m.DB.QueryRowContext(ctx, `
		UPDATE cameras
		SET name = $1, ip_address = $2, port = $3,
		    manufacturer = $4, model = $5, serial_number = $6, mac_address = $7,
		    tags = $8, updated_at = NOW()
		WHERE id = $9 AND tenant_id = $10 AND deleted_at IS NULL
		RETURNING updated_at`,
		c.Name, c.IPAddress.String(), c.Port,
		c.Manufacturer, c.Model, c.SerialNumber, c.MacAddress,
		pq.Array(c.Tags), c.ID, c.TenantID,
	).Scan(&c.UpdatedAt)
	if err == sql.ErrNoRows {
		return ErrRecordNotFound
	}
	return err
}

func (m CameraModel) SetStatus(ctx context.Context, id, tenantID uuid.UUID, enabled bool) error {
	res, err := m.DB.ExecContext(ctx, `
		UPDATE cameras SET is_enabled = $1, updated_at = NOW()
		WHERE id = $2 AND tenant_id = $3 AND deleted_at IS NULL`,
		enabled, id, tenantID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (m CameraModel) SoftDelete(ctx context.Context, id, tenantID uuid.UUID) error {
	res, err := m.DB.ExecContext(ctx, `
		UPDATE cameras SET deleted_at = NOW()
		WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL`, id, tenantID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRecordNotFound
	}
	return nil
}

type CameraFilter struct {
	SiteID    *uuid.UUID
	IsEnabled *bool
	Query     string
}

// List returns a page of cameras plus the unpaged total. The free-text
// filter runs ILIKE over the generated search_text column, which the
// trigram index accelerates.
func (m CameraModel) List(ctx context.Context, tenantID uuid.UUID, filter CameraFilter, limit, offset int) ([]*Camera, int, error) {
	where := "WHERE tenant_id = $1 AND deleted_at IS NULL"
	args := []any{tenantID}
	nextArg := 2

	if filter.SiteID != nil {
		where += fmt.Sprintf(" AND site_id = $%d", nextArg)
		args = append(args, *filter.SiteID)
		nextArg++
	}
	if filter.IsEnabled != nil {
		where += fmt.Sprintf(" AND is_enabled = $%d", nextArg)
		args = append(args, *filter.IsEnabled)
		nextArg++
	}
	if filter.Query != "" {
		where += fmt.Sprintf(" AND search_text ILIKE '%%' || $%d || '%%'", nextArg)
		args = append(args, filter.Query)
		nextArg++
	}

	var total int
	if err := m.DB.QueryRowContext(ctx, "SELECT count(*) FROM cameras "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`
		SELECT id, tenant_id, site_id, name, ip_address, port, is_enabled, tags, stream_source, created_at, updated_at
		FROM cameras
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, where, nextArg, nextArg+1)
	args = append(args, limit, offset)

	rows, err := m.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Camera
	for rows.Next() {
		var c Camera
		var ipStr string
		var tags []string
		if err := rows.Scan(&c.ID, &c.TenantID, &c.SiteID, &c.Name, &ipStr, &c.Port,
			&c.IsEnabled, pq.Array(&tags), &c.StreamSource, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, 0, err
		}
		c.IPAddress = net.ParseIP(ipStr)
		c.Tags = tags
		out = append(out, &c)
	}
	return out, total, rows.Err()
}

// CountAll is the inventory count license quotas are checked against.
func (m CameraModel) CountAll(ctx context.Context, tenantID uuid.UUID) (int, error) {
	var count int
	err := m.DB.QueryRowContext(ctx,
		`SELECT count(*) FROM cameras WHERE tenant_id = $1 AND deleted_at IS NULL`,
		tenantID).Scan(&count)
	return count, err
}

func (m CameraModel) BulkUpdateStatus(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID, enabled bool) error {
	_, err := m.DB.ExecContext(ctx, `
		UPDATE cameras
		SET is_enabled = $1, updated_at = NOW()
		WHERE tenant_id = $2 AND id = ANY($3) AND deleted_at IS NULL`,
		enabled, tenantID, pq.Array(ids))
	return err
}

func (m CameraModel) BulkAddTags(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID, tags []string) error {
	_, err := m.DB.ExecContext(ctx, `
		UPDATE cameras
		SET tags = (SELECT ARRAY(SELECT DISTINCT UNNEST(tags || $1)))
		WHERE tenant_id = $2 AND id = ANY($3) AND deleted_at IS NULL`,
		pq.Array(tags), tenantID, pq.Array(ids))
	return err
}

func (m CameraModel) BulkRemoveTags(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID, tags []string) error {
	_, err := m.DB.ExecContext(ctx, `
		UPDATE cameras
		SET tags = ARRAY(
			SELECT x FROM unnest(tags) AS x
			WHERE x NOT IN (SELECT unnest($1::text[]))
		)
		WHERE tenant_id = $2 AND id = ANY($3) AND deleted_at IS NULL`,
		pq.Array(tags), tenantID, pq.Array(ids))
	return err
}

// ResolveSiteID implements middleware.CameraResolver for camera-scoped
// permission checks.
func (m CameraModel) ResolveSiteID(ctx context.Context, cameraID string) (string, error) {
	var siteID string
	err := m.DB.QueryRowContext(ctx,
		`SELECT site_id FROM cameras WHERE id = $1 AND deleted_at IS NULL`,
		cameraID).Scan(&siteID)
	if err != nil {
		return "", err
	}
	return siteID, nil
}

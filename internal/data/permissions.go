package data

import (
	"context"
	"database/sql"
)

// PermissionGrant is the resolved scope of one permission slug: either
// tenant-wide, or limited to a set of site IDs.
type PermissionGrant struct {
	TenantWide bool
	SiteIDs    map[string]struct{}
}

type PermissionModel struct {
	DB DBTX
}

// GetPermissionsForUser resolves user_roles -> roles -> role_permissions
// -> permissions into a slug-keyed grant map. A role assignment with a
// NULL site_id grants the permission tenant-wide; site-scoped
// assignments accumulate into the grant's site set.
func (m PermissionModel) GetPermissionsForUser(ctx context.Context, tenantID, userID string) (map[string]PermissionGrant, error) {
	rows, err := m.DB.QueryContext(ctx, `
		SELECT p.slug, ur.site_id
		FROM user_roles ur
		JOIN roles r ON ur.role_id = r.id
		JOIN role_permissions rp ON r.id = rp.role_id
		JOIN permissions p ON rp.permission_id = p.id
		WHERE ur.user_id = $1
		  AND ur.tenant_id = $2`, userID, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	perms := make(map[string]PermissionGrant)
	for rows.Next() {
		var slug string
		var siteID sql.NullString
		if err := rows.Scan(&slug, &siteID); err != nil {
			return nil, err
		}

		grant, ok := perms[slug]
		if !ok {
			grant = PermissionGrant{SiteIDs: make(map[string]struct{})}
		}
		if siteID.Valid {
			grant.SiteIDs[siteID.String] = struct{}{}
		} else {
			grant.TenantWide = true
		}
		perms[slug] = grant
	}
	return perms, rows.Err()
}

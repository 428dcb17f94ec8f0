package middleware

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/sudharshan/ppe-monitor/internal/data"
)

// permissionCache bounds per-instance grant lookups; entries expire
// after a short TTL so role edits take effect within a minute.
type permissionCache struct {
	sync.Mutex
	items    map[string]cacheItem
	maxItems int
}

type cacheItem struct {
	perms     map[string]data.PermissionGrant
	expiresAt time.Time
}

func newPermissionCache(maxItems int) *permissionCache {
	return &permissionCache{
		items:    make(map[string]cacheItem),
		maxItems: maxItems,
	}
}

func (c *permissionCache) get(key string) (map[string]data.PermissionGrant, bool) {
	c.Lock()
	defer c.Unlock()

	item, found := c.items[key]
	if !found || time.Now().After(item.expiresAt) {
		delete(c.items, key)
		return nil, false
	}
	return item.perms, true
}

func (c *permissionCache) set(key string, perms map[string]data.PermissionGrant, ttl time.Duration) {
	c.Lock()
	defer c.Unlock()

	// Evict one arbitrary entry when full; map iteration order is as
	// good as random for this purpose.
	if len(c.items) >= c.maxItems {
		for k := range c.items {
			delete(c.items, k)
			break
		}
	}
	c.items[key] = cacheItem{perms: perms, expiresAt: time.Now().Add(ttl)}
}

// CameraResolver maps a camera ID to its site, for camera-scoped
// permission checks.
type CameraResolver interface {
	ResolveSiteID(ctx context.Context, cameraID string) (string, error)
}

// StubCameraResolver denies every camera-scoped check; for tests and
// deployments that only use tenant/site scopes.
type StubCameraResolver struct{}

func (s StubCameraResolver) ResolveSiteID(ctx context.Context, cameraID string) (string, error) {
	return "", errors.New("camera resolution not supported")
}

// PermissionProvider fetches a user's resolved grants.
type PermissionProvider interface {
	GetPermissionsForUser(ctx context.Context, tenantID, userID string) (map[string]data.PermissionGrant, error)
}

// PermissionMiddleware enforces the tenant > site > camera permission
// hierarchy: a tenant-wide grant covers every site and camera, a
// site-scoped grant covers that site's cameras.
type PermissionMiddleware struct {
	permsRepo      PermissionProvider
	cameraResolver CameraResolver
	cache          *permissionCache
}

func NewPermissionMiddleware(pm PermissionProvider, cam CameraResolver) *PermissionMiddleware {
	return &PermissionMiddleware{
		permsRepo:      pm,
		cameraResolver: cam,
		cache:          newPermissionCache(1000),
	}
}

// CheckPermission reports whether the authenticated user holds permSlug
// at the given scope. Missing auth context, unknown slug, and camera
// resolution failures all deny.
func (m *PermissionMiddleware) CheckPermission(ctx context.Context, permSlug, scopeType, scopeID string) (bool, error) {
	ac, ok := GetAuthContext(ctx)
	if !ok {
		return false, nil
	}

	cacheKey := ac.TenantID + ":" + ac.UserID
	grants, found := m.cache.get(cacheKey)
	if !found {
		var err error
		grants, err = m.permsRepo.GetPermissionsForUser(ctx, ac.TenantID, ac.UserID)
		if err != nil {
			return false, err
		}
		m.cache.set(cacheKey, grants, 60*time.Second)
	}

	grant, exists := grants[permSlug]
	if !exists {
		return false, nil
	}

	switch scopeType {
	case "tenant":
		return grant.TenantWide, nil
	case "site":
		if grant.TenantWide {
			return true, nil
		}
		_, ok := grant.SiteIDs[scopeID]
		return ok, nil
	case "camera":
		siteID, err := m.cameraResolver.ResolveSiteID(ctx, scopeID)
		if err != nil {
			return false, nil
		}
		if grant.TenantWide {
			return true, nil
		}
		_, ok := grant.SiteIDs[siteID]
		return ok, nil
	}
	return false, nil
}

// RequirePermission wraps a handler with an enforcement check.
// scopeType is "tenant", "site", or "camera"; site/camera scope IDs
// come from the query string.
func (m *PermissionMiddleware) RequirePermission(permSlug string, scopeType string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var scopeID string
			switch scopeType {
			case "site":
				scopeID = r.URL.Query().Get("site_id")
				if scopeID == "" {
					http.Error(w, "Forbidden (Target Site Missing)", http.StatusForbidden)
					return
				}
			case "camera":
				scopeID = r.URL.Query().Get("camera_id")
				if scopeID == "" {
					http.Error(w, "Forbidden (Target Camera Missing)", http.StatusForbidden)
					return
				}
			}

			allowed, err := m.CheckPermission(r.Context(), permSlug, scopeType, scopeID)
			if err != nil || !allowed {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

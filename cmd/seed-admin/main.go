// Command seed-admin bootstraps a fresh database with the default
// tenant/site, one demo camera, a System Admin role holding every
// permission the route table checks, and an admin account to log in
// with. Idempotent: rerunning against a seeded database adds no rows;
// it only re-applies the demo camera's stream_source.
package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	_ "github.com/lib/pq"

	"github.com/sudharshan/ppe-monitor/internal/auth"
)

// grantedPermissions is kept in sync with the RequirePermission checks
// registered in cmd/server/main.go's route table.
var grantedPermissions = []string{
	"cameras.list", "cameras.create", "cameras.manage",
	"camera.health.read", "camera.health.recheck",
	"alerts.read", "alerts.ack",
	"audit.read", "audit.export",
	"license.read", "license.manage",
	"user.read", "user.create", "user.update", "user.disable", "user.password.reset",
}

func main() {
	db, err := sql.Open("postgres", connString())
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	const (
		tenantID = "00000000-0000-0000-0000-000000000001"
		siteID   = "00000000-0000-0000-0000-000000000001"
		cameraID = "00000000-0000-0000-0000-000000000001"
		userID   = "00000000-0000-0000-0000-000000000001"
	)

	mustExec(db, "Tenant", `
		INSERT INTO tenants (id, name)
		VALUES ($1, 'Default Tenant')
		ON CONFLICT (id) DO NOTHING`, tenantID)

	mustExec(db, "Site", `
		INSERT INTO sites (id, tenant_id, name)
		VALUES ($1, $2, 'Default Site')
		ON CONFLICT (id) DO NOTHING`, siteID, tenantID)

	// stream_source is what the pipeline's frame source opens (device
	// index, file path, or network URL); ip_address/port are management
	// metadata only.
	mustExec(db, "Camera", `
		INSERT INTO cameras (id, tenant_id, site_id, name, ip_address, port, stream_source, is_enabled, manufacturer, model, serial_number, mac_address)
		VALUES ($1, $2, $3, 'Seeded Camera', '127.0.0.1', 8554, 'rtsp://127.0.0.1:8554/seeded-camera', true, 'Generic', 'Virtual', 'SN12345', '00:00:00:00:00:00')
		ON CONFLICT (id) DO UPDATE SET
			stream_source = EXCLUDED.stream_source,
			updated_at = NOW()`, cameraID, tenantID, siteID)

	adminPassword := os.Getenv("ADMIN_PASSWORD")
	if adminPassword == "" {
		adminPassword = "changeme-now"
		log.Println("ADMIN_PASSWORD not set; seeding admin with the default password")
	}
	hash, err := auth.HashPassword(adminPassword)
	if err != nil {
		log.Fatalf("Password hash failed: %v", err)
	}
	mustExec(db, "User", `
		INSERT INTO users (id, tenant_id, email, display_name, password_hash)
		VALUES ($1, $2, 'admin@example.com', 'System Admin', $3)
		ON CONFLICT (id) DO NOTHING`, userID, tenantID, hash)

	var roleID string
	err = db.QueryRow(`SELECT id FROM roles WHERE tenant_id = $1 AND name = 'System Admin'`, tenantID).Scan(&roleID)
	if err == sql.ErrNoRows {
		err = db.QueryRow(`
			INSERT INTO roles (tenant_id, name)
			VALUES ($1, 'System Admin')
			RETURNING id`, tenantID).Scan(&roleID)
	}
	if err != nil {
		log.Fatalf("Role upsert failed: %v", err)
	}

	mustExec(db, "Role assignment", `
		INSERT INTO user_roles (user_id, role_id, tenant_id, scope_type)
		VALUES ($1, $2, $3, 'tenant')
		ON CONFLICT DO NOTHING`, userID, roleID, tenantID)

	for _, slug := range grantedPermissions {
		var permID string
		err := db.QueryRow(`SELECT id FROM permissions WHERE slug = $1`, slug).Scan(&permID)
		if err == sql.ErrNoRows {
			err = db.QueryRow(`
				INSERT INTO permissions (name, slug, description)
				VALUES ($1, $1, 'Auto-seeded')
				RETURNING id`, slug).Scan(&permID)
		}
		if err != nil {
			log.Fatalf("Permission upsert failed for %s: %v", slug, err)
		}

		mustExec(db, "Role permission "+slug, `
			INSERT INTO role_permissions (role_id, permission_id)
			VALUES ($1, $2)
			ON CONFLICT (role_id, permission_id) DO NOTHING`, roleID, permID)
	}

	log.Println("Seed complete: tenant, site, camera, admin@example.com, System Admin role")
}

func mustExec(db *sql.DB, label, query string, args ...any) {
	if _, err := db.Exec(query, args...); err != nil {
		log.Fatalf("%s insert failed: %v", label, err)
	}
}

func connString() string {
	get := func(key, fallback string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return fallback
	}
	return fmt.Sprintf("postgres://%s:%s@%s:5432/%s?sslmode=disable",
		get("DB_USER", "postgres"), os.Getenv("DB_PASSWORD"),
		get("DB_HOST", "localhost"), get("DB_NAME", "ppe_monitor"))
}

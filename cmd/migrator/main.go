// Command migrator applies the db/migrations schema with golang-migrate.
// Connection settings come from DB_* environment variables: DB_HOST,
// DB_USER, DB_PASSWORD and DB_NAME, which the server also reads, plus
// DB_PORT and DB_SSLMODE, which only the migrator reads.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

func main() {
	up := flag.Bool("up", false, "Run all up migrations")
	down := flag.Bool("down", false, "Rollback all migrations")
	steps := flag.Int("steps", 0, "Run +/- steps")
	flag.Parse()

	m := newMigrator()

	start := time.Now()
	switch {
	case *up:
		log.Println("Running UP migrations...")
		if err := m.Up(); err != nil && err != migrate.ErrNoChange {
			log.Fatalf("Migration UP failed: %v", err)
		}
		log.Println("Migration UP completed.")
	case *down:
		log.Println("Running DOWN migrations...")
		if err := m.Down(); err != nil && err != migrate.ErrNoChange {
			log.Fatalf("Migration DOWN failed: %v", err)
		}
		log.Println("Migration DOWN completed.")
	case *steps != 0:
		log.Printf("Running %d steps...", *steps)
		if err := m.Steps(*steps); err != nil && err != migrate.ErrNoChange {
			log.Fatalf("Migration Steps failed: %v", err)
		}
		log.Println("Migration Steps completed.")
	default:
		log.Println("No command specified. Use -up, -down, or -steps.")
		version, dirty, err := m.Version()
		if err != nil {
			log.Println("No version found (empty db?).")
		} else {
			log.Printf("Current Version: %d, Dirty: %v", version, dirty)
		}
	}
	log.Printf("Duration: %v", time.Since(start))
}

func newMigrator() *migrate.Migrate {
	db, err := sql.Open("postgres", connString())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		log.Fatalf("Failed to create migrate driver: %v", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://db/migrations", "postgres", driver)
	if err != nil {
		log.Fatalf("Failed to initialize migrate: %v", err)
	}
	return m
}

func connString() string {
	get := func(key, fallback string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return fallback
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		os.Getenv("DB_USER"), os.Getenv("DB_PASSWORD"),
		get("DB_HOST", "localhost"), get("DB_PORT", "5432"),
		os.Getenv("DB_NAME"), get("DB_SSLMODE", "disable"))
}

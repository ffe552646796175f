package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path/filepath"

	"pix-subscription-billing/internal/infra/db/postgres"
)

// Applies the database schema and optionally seeds a demo user. Meant for
// local setup and manual end-to-end testing, not production migrations.
func main() {
	ctx := context.Background()

	databaseURL := flag.String("database-url", os.Getenv("DATABASE_URL"), "postgres connection string")
	schemaPath := flag.String("schema", filepath.Join("deploy", "postgres", "init.sql"), "path to schema file")
	seed := flag.Bool("seed", false, "insert a demo user after applying the schema")
	flag.Parse()

	if *databaseURL == "" {
		log.Fatal("database url is required (flag -database-url or DATABASE_URL)")
	}

	pool, err := postgres.NewPgxPool(ctx, *databaseURL, 5)
	if err != nil {
		log.Fatalf("postgres connection failed: %v", err)
	}
	defer pool.Close()

	schema, err := os.ReadFile(*schemaPath)
	if err != nil {
		log.Fatalf("could not read schema from %s: %v", *schemaPath, err)
	}

	log.Println("Applying schema...")
	if _, err := pool.Exec(ctx, string(schema)); err != nil {
		log.Fatalf("failed to apply schema: %v", err)
	}

	if *seed {
		log.Println("Seeding demo user...")
		_, err := pool.Exec(ctx, `
			INSERT INTO users (id, email) VALUES ('demo-user', 'demo@example.com')
			ON CONFLICT (id) DO NOTHING;
		`)
		if err != nil {
			log.Fatalf("failed to seed demo user: %v", err)
		}
	}

	log.Println("Setup complete.")
}

package main

import (
	"context"
	"fmt"
	"log"

	"key-service/internal/config"
	"key-service/internal/repository/postgres"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: Error loading .env file: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Store.Driver != config.DriverPostgres {
		log.Fatalf("STORE_DRIVER is %q; the sqlite store migrates itself on open", cfg.Store.Driver)
	}

	fmt.Println("=== Setting Up Database ===")
	fmt.Println()

	db, err := postgres.New(&cfg.Database)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer db.Close()

	fmt.Println("✅ Connected to database")
	fmt.Println()

	ctx := context.Background()

	fmt.Println("Applying migrations...")
	if err := db.Migrate(ctx); err != nil {
		log.Fatalf("❌ Failed to apply migrations: %v", err)
	}

	fmt.Println("✅ Migrations applied successfully")
	fmt.Println()

	fmt.Println("=== Verifying Tables ===")
	tables := []string{"keys", "assignments", "delegations", "transactions", "schema_migrations"}

	for _, table := range tables {
		var exists bool
		query := `SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_schema = 'public'
			AND table_name = $1
		)`
		err := db.Pool.QueryRow(ctx, query, table).Scan(&exists)
		if err != nil {
			log.Printf("❌ Error checking table %s: %v", table, err)
			continue
		}

		if exists {
			fmt.Printf("✅ Table '%s' exists\n", table)
		} else {
			fmt.Printf("❌ Table '%s' does not exist\n", table)
		}
	}

	fmt.Println()
	fmt.Println("=== Setup Complete ===")
}

package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// RunMigrations выполняет все миграции из указанной директории.
// Файлы должны иметь формат 001_name.sql, 002_name.sql и т.д.
// и содержать секции "-- +migrate Up" / "-- +migrate Down".
func RunMigrations(ctx context.Context, db *pgxpool.Pool, migrationsDir string, logger *zap.Logger) error {
	log := logger.Named("Migrations")
	log.Info("Starting migrations", zap.String("dir", migrationsDir))

	if err := createMigrationsTable(ctx, db); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := getAppliedMigrations(ctx, db)
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	files, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	// Сортируем файлы по имени: номер версии идет первым
	sort.Slice(files, func(i, j int) bool {
		return files[i].Name() < files[j].Name()
	})

	for _, file := range files {
		if !strings.HasSuffix(file.Name(), ".sql") {
			continue
		}

		version := getMigrationVersion(file.Name())
		if version == 0 {
			log.Warn("Skipping invalid migration file", zap.String("file", file.Name()))
			continue
		}
		if applied[version] {
			log.Debug("Migration already applied", zap.Int("version", version))
			continue
		}

		if err := applyMigration(ctx, db, filepath.Join(migrationsDir, file.Name())); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", version, err)
		}
		if _, err := db.Exec(ctx, `INSERT INTO migrations (version) VALUES ($1)`, version); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", version, err)
		}
		log.Info("Applied migration", zap.Int("version", version), zap.String("file", file.Name()))
	}

	return nil
}

func createMigrationsTable(ctx context.Context, db *pgxpool.Pool) error {
	sql := `
		CREATE TABLE IF NOT EXISTS migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
		)`
	_, err := db.Exec(ctx, sql)
	return err
}

func getAppliedMigrations(ctx context.Context, db *pgxpool.Pool) (map[int]bool, error) {
	rows, err := db.Query(ctx, `SELECT version FROM migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

// getMigrationVersion извлекает версию миграции из имени файла.
func getMigrationVersion(filename string) int {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0
	}
	return version
}

// applyMigration применяет Up-секцию одной миграции в транзакции.
func applyMigration(ctx context.Context, db *pgxpool.Pool, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	parts := strings.Split(string(content), "-- +migrate Down")
	upSQL := parts[0]
	upSQL = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(upSQL), "-- +migrate Up"))
	if upSQL == "" {
		return fmt.Errorf("migration %s has empty up section", path)
	}

	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, upSQL); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

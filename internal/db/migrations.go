package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,

	// one row per synthesized report, batch or live
	`CREATE TABLE IF NOT EXISTS inspections (
		id               UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		mode             TEXT NOT NULL,
		session_id       TEXT,
		vin              TEXT NOT NULL,
		make             TEXT NOT NULL,
		model            TEXT NOT NULL,
		year             TEXT NOT NULL,
		mileage          TEXT NOT NULL,
		image_count      INT NOT NULL DEFAULT 0,
		total_defects    INT NOT NULL DEFAULT 0,
		unique_defects   INT NOT NULL DEFAULT 0,
		verdict          TEXT NOT NULL,
		remark           TEXT NOT NULL,
		defects          JSONB NOT NULL DEFAULT '[]'::jsonb,
		annotated_images JSONB NOT NULL DEFAULT '[]'::jsonb,
		report_url       TEXT,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_inspections_created_at ON inspections(created_at DESC);`,
	`CREATE INDEX IF NOT EXISTS idx_inspections_verdict ON inspections(verdict);`,
	`CREATE INDEX IF NOT EXISTS idx_inspections_vin ON inspections(vin);`,
	`DO $$
	BEGIN
		IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_inspections_verdict') THEN
			ALTER TABLE inspections ADD CONSTRAINT chk_inspections_verdict
				CHECK (verdict IN ('PASS', 'ATTENTION', 'FAIL'));
		END IF;
	END
	$$;`,
	`ALTER TABLE inspections ADD COLUMN IF NOT EXISTS session_id TEXT;`,
	`CREATE INDEX IF NOT EXISTS idx_inspections_session_id ON inspections(session_id) WHERE session_id IS NOT NULL;`,
}

func runMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}

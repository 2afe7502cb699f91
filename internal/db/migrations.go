package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,
	`CREATE TABLE IF NOT EXISTS vehicles (
		id                  UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		model               TEXT,
		color               TEXT,
		owner_name          TEXT,
		origin_country      TEXT,
		destination_country TEXT,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE TABLE IF NOT EXISTS license_plates (
		id          BIGSERIAL PRIMARY KEY,
		vehicle_id  UUID NOT NULL REFERENCES vehicles(id) ON DELETE CASCADE,
		number      TEXT NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_license_plates_number ON license_plates(number);`,
	`CREATE INDEX IF NOT EXISTS idx_license_plates_vehicle_id ON license_plates(vehicle_id);`,
	`CREATE TABLE IF NOT EXISTS authorization_checks (
		id            BIGSERIAL PRIMARY KEY,
		vehicle_id    UUID NOT NULL REFERENCES vehicles(id) ON DELETE CASCADE,
		border_name   TEXT,
		approved      BOOLEAN NOT NULL DEFAULT false,
		document_path TEXT,
		checked_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_authorization_checks_vehicle_checked ON authorization_checks(vehicle_id, checked_at DESC, id DESC);`,
	`CREATE TABLE IF NOT EXISTS plate_recognitions (
		id            BIGSERIAL PRIMARY KEY,
		session_id    UUID NOT NULL,
		plate         TEXT NOT NULL,
		vehicle_id    UUID REFERENCES vehicles(id) ON DELETE SET NULL,
		success       BOOLEAN NOT NULL DEFAULT false,
		approved      BOOLEAN NOT NULL DEFAULT false,
		details       JSONB,
		recognized_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_plate_recognitions_plate ON plate_recognitions(plate);`,
	`CREATE INDEX IF NOT EXISTS idx_plate_recognitions_recognized_at ON plate_recognitions(recognized_at);`,
	`CREATE TABLE IF NOT EXISTS actuation_events (
		id          BIGSERIAL PRIMARY KEY,
		vehicle_id  UUID REFERENCES vehicles(id) ON DELETE SET NULL,
		action      TEXT NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_actuation_events_vehicle_id ON actuation_events(vehicle_id);`,
	`CREATE INDEX IF NOT EXISTS idx_actuation_events_created_at ON actuation_events(created_at);`,
}

func runMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}

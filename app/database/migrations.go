package database

import (
	"database/sql"
	"log"
)

// RunMigrations bootstraps the schema. Every statement is idempotent so the
// server can run it on every start.
func RunMigrations(db *sql.DB) error {
	log.Println("Running database migrations...")

	if _, err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "pgcrypto";`); err != nil {
		return err
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			email VARCHAR(255) UNIQUE NOT NULL,
			password VARCHAR(255) NOT NULL,
			name VARCHAR(100) NOT NULL,
			role VARCHAR(20) NOT NULL DEFAULT 'user',
			is_active BOOLEAN DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			deleted_at TIMESTAMPTZ
		);`,
		`CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);`,

		`CREATE TABLE IF NOT EXISTS meets (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			name VARCHAR(255) NOT NULL,
			location VARCHAR(255),
			starts_at TIMESTAMPTZ,
			is_published BOOLEAN DEFAULT false,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,

		`CREATE TABLE IF NOT EXISTS events (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			meet_id UUID NOT NULL REFERENCES meets(id) ON DELETE CASCADE,
			name VARCHAR(255) NOT NULL,
			gender VARCHAR(10) NOT NULL DEFAULT 'mixed',
			sort_order INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_meet_id ON events(meet_id);`,

		`CREATE TABLE IF NOT EXISTS prize_purse_configs (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			meet_id UUID NOT NULL REFERENCES meets(id) ON DELETE CASCADE,
			ppv_ticket_price DECIMAL(10,2) NOT NULL DEFAULT 0,
			ppv_purse_mode VARCHAR(20) NOT NULL DEFAULT 'static',
			ppv_purse_static_amount DECIMAL(10,2),
			ppv_purse_percentage DECIMAL(5,2),
			places_paid INTEGER NOT NULL DEFAULT 3 CHECK (places_paid BETWEEN 1 AND 6),
			contributions_open_at TIMESTAMPTZ,
			contributions_close_at TIMESTAMPTZ,
			is_active BOOLEAN NOT NULL DEFAULT true,
			is_finalized BOOLEAN NOT NULL DEFAULT false,
			version INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			deleted_at TIMESTAMPTZ
		);`,
		// One live config per meet
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_purse_configs_meet_live
			ON prize_purse_configs(meet_id) WHERE deleted_at IS NULL;`,

		`CREATE TABLE IF NOT EXISTS event_purse_allocations (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			config_id UUID NOT NULL REFERENCES prize_purse_configs(id) ON DELETE CASCADE,
			event_id UUID NOT NULL REFERENCES events(id) ON DELETE CASCADE,
			meet_pct DECIMAL(5,2) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE(config_id, event_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_event_allocs_config ON event_purse_allocations(config_id);`,

		`CREATE TABLE IF NOT EXISTS place_purse_allocations (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			event_allocation_id UUID NOT NULL REFERENCES event_purse_allocations(id) ON DELETE CASCADE,
			place INTEGER NOT NULL CHECK (place BETWEEN 1 AND 6),
			event_pct DECIMAL(5,2) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE(event_allocation_id, place)
		);`,

		`CREATE TABLE IF NOT EXISTS purse_seed_money (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			config_id UUID NOT NULL REFERENCES prize_purse_configs(id) ON DELETE CASCADE,
			amount DECIMAL(10,2) NOT NULL CHECK (amount > 0),
			note TEXT,
			event_allocation_id UUID REFERENCES event_purse_allocations(id) ON DELETE CASCADE,
			place_allocation_id UUID REFERENCES place_purse_allocations(id) ON DELETE CASCADE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_seed_money_config ON purse_seed_money(config_id);`,

		`CREATE TABLE IF NOT EXISTS purse_contributions (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			config_id UUID NOT NULL REFERENCES prize_purse_configs(id),
			source_type VARCHAR(20) NOT NULL,
			event_allocation_id UUID REFERENCES event_purse_allocations(id),
			user_id UUID NOT NULL REFERENCES users(id),
			gross_amount DECIMAL(10,2) NOT NULL,
			purse_amount DECIMAL(10,2) NOT NULL,
			square_payment_id VARCHAR(100) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_contributions_config ON purse_contributions(config_id);`,
		`CREATE INDEX IF NOT EXISTS idx_contributions_user ON purse_contributions(user_id);`,

		`CREATE TABLE IF NOT EXISTS purse_refunds (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			config_id UUID NOT NULL REFERENCES prize_purse_configs(id),
			contribution_id UUID NOT NULL UNIQUE REFERENCES purse_contributions(id),
			refund_amount DECIMAL(10,2) NOT NULL,
			square_refund_id VARCHAR(100) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_refunds_config ON purse_refunds(config_id);`,

		`CREATE TABLE IF NOT EXISTS purse_snapshots (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			config_id UUID NOT NULL REFERENCES prize_purse_configs(id) ON DELETE CASCADE,
			scope_type VARCHAR(10) NOT NULL,
			event_allocation_id UUID REFERENCES event_purse_allocations(id) ON DELETE CASCADE,
			place_allocation_id UUID REFERENCES place_purse_allocations(id) ON DELETE CASCADE,
			cached_total DECIMAL(10,2) NOT NULL DEFAULT 0,
			contribution_count INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_snapshots_scope
			ON purse_snapshots(config_id, scope_type,
				COALESCE(event_allocation_id, '00000000-0000-0000-0000-000000000000'),
				COALESCE(place_allocation_id, '00000000-0000-0000-0000-000000000000'));`,

		`CREATE TABLE IF NOT EXISTS user_meet_access (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			meet_id UUID NOT NULL REFERENCES meets(id) ON DELETE CASCADE,
			access_type VARCHAR(10) NOT NULL DEFAULT 'ppv',
			square_payment_id VARCHAR(100) NOT NULL,
			granted_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			revoked_at TIMESTAMPTZ,
			UNIQUE(user_id, meet_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_meet_access_user ON user_meet_access(user_id);`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			log.Printf("Migration failed: %v", err)
			return err
		}
	}

	log.Println("Database migrations completed successfully")
	return nil
}

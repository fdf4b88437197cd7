package cmd

import (
	"fmt"
	"log"
	"time"

	"github.com/hookrelay/hookrelay/internal/config"
	"github.com/hookrelay/hookrelay/internal/db"
	"github.com/hookrelay/hookrelay/internal/model"
	"github.com/hookrelay/hookrelay/internal/secrets"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with demo tenants and endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1) load config
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		// 2) connect MySQL
		sqlDB, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
			MaxOpenConns:    cfg.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.MySQL.MaxIdleConns,
			ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
			PingTimeout:     cfg.MySQL.PingTimeout,
		})
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer sqlDB.Close()

		box, err := secrets.NewBox(cfg.Secrets.Key)
		if err != nil {
			return fmt.Errorf("secrets box: %w", err)
		}

		log.Println(">> Seeding demo tenants...")

		if err := seedTenants(sqlDB); err != nil {
			return err
		}
		if err := seedEndpoints(sqlDB, box); err != nil {
			return err
		}

		log.Println(">> Seed completed ✅")
		return nil
	},
}

// seedTenants inserts deterministic demo tenants (idempotent).
func seedTenants(dbx *sqlx.DB) error {
	tenants := []model.Tenant{
		{
			Name:         "Acme Corp",
			APIKey:       "11111111111111111111111111111111",
			Status:       "active",
			RateLimitRPS: intptr(20),
		},
		{
			Name:         "Foobar LLC",
			APIKey:       "22222222222222222222222222222222",
			Status:       "active",
			RateLimitRPS: intptr(50),
		},
		{
			Name:         "Suspended Inc",
			APIKey:       "33333333333333333333333333333333",
			Status:       "suspended",
			RateLimitRPS: nil,
		},
	}

	// idempotent upsert based on api_key (UNIQUE)
	const q = `
INSERT INTO tenants
    (name, api_key, status, rate_limit_rps, created_at, updated_at)
VALUES
    (?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
    name        = VALUES(name),
    status      = VALUES(status),
    rate_limit_rps = VALUES(rate_limit_rps),
    updated_at  = VALUES(updated_at)
`
	tx, err := dbx.Beginx()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now()
	for _, t := range tenants {
		if _, err := tx.Exec(q, t.Name, t.APIKey, t.Status, t.RateLimitRPS, now, now); err != nil {
			return fmt.Errorf("insert tenant %q: %w", t.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tenants: %w", err)
	}
	return nil
}

// seedEndpoints creates demo endpoints for tenants that don't have any yet.
// Secrets are sealed when a crypto key is configured, stored empty otherwise.
func seedEndpoints(dbx *sqlx.DB, box *secrets.Box) error {
	var count int
	if err := dbx.Get(&count, `SELECT COUNT(*) FROM endpoints`); err != nil {
		return fmt.Errorf("count endpoints: %w", err)
	}
	if count > 0 {
		return nil
	}

	sealed := func(plain string) string {
		ct, err := box.Encrypt(plain)
		if err != nil {
			return ""
		}
		return ct
	}

	type seedEndpoint struct {
		apiKey   string
		url      string
		patterns model.Patterns
		secret   string
	}
	eps := []seedEndpoint{
		{
			apiKey:   "11111111111111111111111111111111",
			url:      "https://hooks.acme.example/events",
			patterns: model.Patterns{"ticket.*", "message.created"},
			secret:   sealed("whsec_demo_acme"),
		},
		{
			apiKey:   "11111111111111111111111111111111",
			url:      "https://audit.acme.example/ingest",
			patterns: model.Patterns{"*"},
			secret:   sealed("whsec_demo_audit"),
		},
		{
			apiKey:   "22222222222222222222222222222222",
			url:      "https://callbacks.foobar.example/webhooks",
			patterns: model.Patterns{"campaign.*"},
			secret:   "",
		},
	}

	const q = `
INSERT INTO endpoints (tenant_id, url, event_patterns, secret, enabled, created_at, updated_at)
SELECT t.id, ?, ?, ?, 1, NOW(), NOW()
FROM tenants t
WHERE t.api_key = ?
`
	for _, ep := range eps {
		if _, err := dbx.Exec(q, ep.url, ep.patterns, ep.secret, ep.apiKey); err != nil {
			return fmt.Errorf("insert endpoint %q: %w", ep.url, err)
		}
	}
	return nil
}

func intptr(i int) *int { return &i }

package telemetry

import "database/sql"

// initSchema initializes the database schema for local sample history
func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
        CREATE TABLE IF NOT EXISTS history (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            ts INTEGER NOT NULL,
            sample_type TEXT NOT NULL,
            device_id TEXT NOT NULL,
            latency_ms REAL,
            packet_loss_pct REAL,
            down_mbps REAL,
            up_mbps REAL,
            test_method TEXT,
            ip TEXT,
            latency_eu_ms REAL,
            latency_us_ms REAL,
            latency_asia_ms REAL
        )
    `)

	return err
}

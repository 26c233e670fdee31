package modules

import (
	"database/sql"
	"fmt"
	"time"
)

const numberCacheTTL = (30 * 24) * time.Hour

// NumberCache remembers directory-probe results so repeated sends to the same
// contact do not hammer the provider. Entries expire after 30 days because
// numbers do get recycled.
type NumberCache struct {
	db *sql.DB
}

func NewNumberCache(db *sql.DB) (*NumberCache, error) {
	createTableSQL := `CREATE TABLE IF NOT EXISTS verified_numbers (
		raw_number TEXT PRIMARY KEY,
		found_number TEXT NOT NULL,
		found_server TEXT NOT NULL,
		expires_in INTEGER NOT NULL
	);`
	if _, err := db.Exec(createTableSQL); err != nil {
		return nil, fmt.Errorf("criando tabela verified_numbers: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_verified_expires ON verified_numbers(expires_in);`); err != nil {
		return nil, fmt.Errorf("criando índice: %w", err)
	}
	return &NumberCache{db: db}, nil
}

// Find returns (hit, user, server). A hit with empty user/server means the
// number was probed before and is not on the network.
func (c *NumberCache) Find(rawNumber string) (bool, string, string) {
	var user, server string
	err := c.db.QueryRow(
		`SELECT found_number, found_server FROM verified_numbers
		 WHERE raw_number = ? AND expires_in > ? LIMIT 1`,
		rawNumber, time.Now().Unix(),
	).Scan(&user, &server)
	if err != nil {
		return false, "", ""
	}
	return true, user, server
}

// Save records a probe result. Negative results are stored with empty
// user/server so they still short-circuit future probes.
func (c *NumberCache) Save(rawNumber, user, server string, exists bool) {
	if !exists {
		user = ""
		server = ""
	}
	expires := time.Now().Add(numberCacheTTL).Unix()
	// REPLACE funciona igual no sqlite e no MySQL
	_, _ = c.db.Exec(`REPLACE INTO verified_numbers (raw_number, found_number, found_server, expires_in)
		VALUES (?, ?, ?, ?)`,
		rawNumber, user, server, expires)
}

// PurgeExpired drops stale rows; called opportunistically on connect.
func (c *NumberCache) PurgeExpired() {
	_, _ = c.db.Exec(`DELETE FROM verified_numbers WHERE expires_in <= ?`, time.Now().Unix())
}

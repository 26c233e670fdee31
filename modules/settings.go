package modules

import (
	"database/sql"
	"fmt"
	"time"
)

// Settings is the operator configuration snapshot. The manager treats a
// loaded Settings as read-only; changes only take effect on the next
// explicit reload (Initialize or ReloadSettings).
type Settings struct {
	MarkOnlineOnConnect   bool   `json:"markOnlineOnConnect"`
	MarkMessagesRead      bool   `json:"markMessagesRead"`
	SendReadReceipts      bool   `json:"sendReadReceipts"`
	AutoDownloadMedia     bool   `json:"autoDownloadMedia"`
	AutoDownloadDocuments bool   `json:"autoDownloadDocuments"`
	FetchClientPhotos     bool   `json:"fetchClientPhotos"`
	CacheClientPhotos     bool   `json:"cacheClientPhotos"`
	ShowClientStatus      bool   `json:"showClientStatus"`
	ProfileName           string `json:"profileName"`
	ProfileStatus         string `json:"profileStatus"`
	ProfilePicture        string `json:"profilePicture"` // path to an image file, jpeg or webp
	ReconnectIntervalMs   int    `json:"reconnectInterval"`
	MaxReconnectRetries   int    `json:"maxReconnectRetries"`
	SendPacingMs          int    `json:"sendPacingMs"`
	LogLevel              string `json:"logLevel"`
	CountryCode           string `json:"countryCode"`
}

// DefaultSettings is the fallback when no row was ever persisted.
func DefaultSettings() *Settings {
	return &Settings{
		MarkOnlineOnConnect:   true,
		MarkMessagesRead:      true,
		SendReadReceipts:      true,
		AutoDownloadMedia:     true,
		AutoDownloadDocuments: true,
		FetchClientPhotos:     true,
		CacheClientPhotos:     true,
		ShowClientStatus:      true,
		ReconnectIntervalMs:   5000,
		MaxReconnectRetries:   5,
		SendPacingMs:          1500,
		LogLevel:              "info",
		CountryCode:           "55",
	}
}

func (s *Settings) ReconnectInterval() time.Duration {
	return time.Duration(s.ReconnectIntervalMs) * time.Millisecond
}

func (s *Settings) SendPacing() time.Duration {
	return time.Duration(s.SendPacingMs) * time.Millisecond
}

// SettingsStore persists the single settings row. The default deployment
// keeps it in the local manager.db sqlite file; pointing SETTINGS_DSN at a
// MySQL database moves it server-side without code changes.
type SettingsStore struct {
	db *sql.DB
}

func NewSettingsStore(db *sql.DB) (*SettingsStore, error) {
	createTableSQL := `CREATE TABLE IF NOT EXISTS session_settings (
		id INTEGER PRIMARY KEY,
		mark_online_on_connect INTEGER NOT NULL,
		mark_messages_read INTEGER NOT NULL,
		send_read_receipts INTEGER NOT NULL,
		auto_download_media INTEGER NOT NULL,
		auto_download_documents INTEGER NOT NULL,
		fetch_client_photos INTEGER NOT NULL,
		cache_client_photos INTEGER NOT NULL,
		show_client_status INTEGER NOT NULL,
		profile_name TEXT NOT NULL,
		profile_status TEXT NOT NULL,
		profile_picture TEXT NOT NULL,
		reconnect_interval_ms INTEGER NOT NULL,
		max_reconnect_retries INTEGER NOT NULL,
		send_pacing_ms INTEGER NOT NULL,
		log_level TEXT NOT NULL,
		country_code TEXT NOT NULL
	);`
	if _, err := db.Exec(createTableSQL); err != nil {
		return nil, fmt.Errorf("criando tabela session_settings: %w", err)
	}
	return &SettingsStore{db: db}, nil
}

// Load returns the persisted settings, or DefaultSettings when nothing was
// ever saved.
func (st *SettingsStore) Load() (*Settings, error) {
	s := DefaultSettings()
	row := st.db.QueryRow(`SELECT mark_online_on_connect, mark_messages_read, send_read_receipts,
		auto_download_media, auto_download_documents, fetch_client_photos, cache_client_photos,
		show_client_status, profile_name, profile_status, profile_picture,
		reconnect_interval_ms, max_reconnect_retries, send_pacing_ms, log_level, country_code
		FROM session_settings WHERE id = 1`)
	err := row.Scan(
		&s.MarkOnlineOnConnect, &s.MarkMessagesRead, &s.SendReadReceipts,
		&s.AutoDownloadMedia, &s.AutoDownloadDocuments, &s.FetchClientPhotos, &s.CacheClientPhotos,
		&s.ShowClientStatus, &s.ProfileName, &s.ProfileStatus, &s.ProfilePicture,
		&s.ReconnectIntervalMs, &s.MaxReconnectRetries, &s.SendPacingMs, &s.LogLevel, &s.CountryCode,
	)
	if err == sql.ErrNoRows {
		return DefaultSettings(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("lendo session_settings: %w", err)
	}
	return s, nil
}

// Save upserts the single row.
func (st *SettingsStore) Save(s *Settings) error {
	_, err := st.db.Exec(`REPLACE INTO session_settings (
		id, mark_online_on_connect, mark_messages_read, send_read_receipts,
		auto_download_media, auto_download_documents, fetch_client_photos, cache_client_photos,
		show_client_status, profile_name, profile_status, profile_picture,
		reconnect_interval_ms, max_reconnect_retries, send_pacing_ms, log_level, country_code
	) VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.MarkOnlineOnConnect, s.MarkMessagesRead, s.SendReadReceipts,
		s.AutoDownloadMedia, s.AutoDownloadDocuments, s.FetchClientPhotos, s.CacheClientPhotos,
		s.ShowClientStatus, s.ProfileName, s.ProfileStatus, s.ProfilePicture,
		s.ReconnectIntervalMs, s.MaxReconnectRetries, s.SendPacingMs, s.LogLevel, s.CountryCode,
	)
	if err != nil {
		return fmt.Errorf("salvando session_settings: %w", err)
	}
	return nil
}

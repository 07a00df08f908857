package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"camrelay/internal/models"
)

// DB wraps the upload journal database connection
type DB struct {
	*sql.DB
}

// InitDB initializes the journal database with connection pooling
func InitDB(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS uploads (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		filename TEXT NOT NULL,
		size_bytes INTEGER NOT NULL,
		has_location BOOLEAN DEFAULT 0,
		remote_addr TEXT,
		received_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_uploads_received ON uploads(received_at);
	`

	_, err := db.Exec(schema)
	return err
}

// LogUpload records an accepted upload in the journal
func (db *DB) LogUpload(rec *models.UploadRecord) error {
	query := `INSERT INTO uploads (filename, size_bytes, has_location, remote_addr, received_at)
	          VALUES (?, ?, ?, ?, ?)`
	result, err := db.Exec(query, rec.Filename, rec.SizeBytes, rec.HasLocation, rec.RemoteAddr, rec.ReceivedAt)
	if err != nil {
		return err
	}
	id, _ := result.LastInsertId()
	rec.ID = int(id)
	return nil
}

// RecentUploads retrieves the newest journal rows, up to limit
func (db *DB) RecentUploads(limit int) ([]*models.UploadRecord, error) {
	rows, err := db.Query(`SELECT id, filename, size_bytes, has_location, remote_addr, received_at
	                        FROM uploads ORDER BY received_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.UploadRecord
	for rows.Next() {
		rec := &models.UploadRecord{}
		if err := rows.Scan(&rec.ID, &rec.Filename, &rec.SizeBytes, &rec.HasLocation, &rec.RemoteAddr, &rec.ReceivedAt); err != nil {
			continue
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// Stats summarizes the journal
func (db *DB) Stats() (*models.UploadStats, error) {
	stats := &models.UploadStats{}
	query := `SELECT COUNT(*), COALESCE(SUM(size_bytes), 0),
	                 COALESCE(SUM(CASE WHEN has_location THEN 1 ELSE 0 END), 0)
	          FROM uploads`
	err := db.QueryRow(query).Scan(&stats.Uploads, &stats.TotalBytes, &stats.WithLocation)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

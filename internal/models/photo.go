package models

import "time"

// UploadRecord is one row of the upload journal.
type UploadRecord struct {
	ID          int       `json:"id"`
	Filename    string    `json:"filename"`
	SizeBytes   int64     `json:"size_bytes"`
	HasLocation bool      `json:"has_location"`
	RemoteAddr  string    `json:"remote_addr"`
	ReceivedAt  time.Time `json:"received_at"`
}

// UploadStats summarizes the journal for the dashboard.
type UploadStats struct {
	Uploads      int   `json:"uploads"`
	TotalBytes   int64 `json:"total_bytes"`
	WithLocation int   `json:"with_location"`
}

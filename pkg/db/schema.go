package db

// Schema defines the SQLite database schema for check sessions.
// sessions holds the latest status of each check, transitions the full
// history, and updates every firmware update wizard run.
const Schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    device_id TEXT NOT NULL,
    model_id TEXT NOT NULL DEFAULT '',
    genuine_status TEXT NOT NULL DEFAULT 'inactive',
    firmware_status TEXT NOT NULL DEFAULT 'inactive',
    completed INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_sessions_device_id ON sessions(device_id);
CREATE INDEX IF NOT EXISTS idx_sessions_created_at ON sessions(created_at);

CREATE TABLE IF NOT EXISTS transitions (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    device_id TEXT NOT NULL,
    check_name TEXT NOT NULL CHECK(check_name IN ('genuine', 'firmware')),
    from_status TEXT NOT NULL,
    to_status TEXT NOT NULL,
    reason TEXT,
    at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transitions_session_id ON transitions(session_id);

CREATE TABLE IF NOT EXISTS updates (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    device_id TEXT NOT NULL,
    firmware TEXT NOT NULL,
    mode TEXT NOT NULL,
    step_id TEXT NOT NULL,
    status TEXT NOT NULL CHECK(status IN ('pending', 'running', 'completed', 'cancelled', 'failed')),
    attempts INTEGER NOT NULL DEFAULT 0,
    error_message TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_updates_session_id ON updates(session_id);
CREATE INDEX IF NOT EXISTS idx_updates_status ON updates(status);
`

// Update status constants
const (
	UpdatePending   = "pending"
	UpdateRunning   = "running"
	UpdateCompleted = "completed"
	UpdateCancelled = "cancelled"
	UpdateFailed    = "failed"
)

// Session represents one run of the early security checks
type Session struct {
	ID             string
	DeviceID       string
	ModelID        string
	GenuineStatus  string
	FirmwareStatus string
	Completed      bool
	CreatedAt      string
	UpdatedAt      string
}

// TransitionRecord is a persisted check status change
type TransitionRecord struct {
	ID        string
	SessionID string
	DeviceID  string
	Check     string
	From      string
	To        string
	Reason    string
	At        string
}

// Update represents one firmware update wizard run
type Update struct {
	ID           string
	SessionID    string
	DeviceID     string
	Firmware     string
	Mode         string
	StepID       string
	Status       string
	Attempts     int
	ErrorMessage string
	CreatedAt    string
	UpdatedAt    string
}

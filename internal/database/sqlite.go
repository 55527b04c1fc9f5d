package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/depmaths/messagerie/internal/models"
)

// ErrNotFound is returned when a lookup matches no row
var ErrNotFound = errors.New("not found")

// DB wraps the SQLite database connection
type DB struct {
	*sql.DB
}

// New creates a new database connection and initializes schema
func New(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	wrapper := &DB{db}
	if err := wrapper.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return wrapper, nil
}

// initSchema creates the database tables if they don't exist
func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		email TEXT,
		role TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sessions (
		token_hash TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL
	);

	-- seq carries the server order of messages
	CREATE TABLE IF NOT EXISTS messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		text TEXT NOT NULL,
		sender TEXT NOT NULL,
		grp TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_grp ON messages(grp, seq);
	CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);
	`

	_, err := db.Exec(schema)
	return err
}

// CreateUser inserts a new user
func (db *DB) CreateUser(user *models.User, passwordHash string) error {
	_, err := db.Exec(`
		INSERT INTO users (id, name, email, role, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID.String(), user.Name, user.Email, string(user.Role), passwordHash, user.CreatedAt)
	return err
}

// GetUserByName retrieves a user and password hash by name
func (db *DB) GetUserByName(name string) (*models.User, string, error) {
	row := db.QueryRow(`
		SELECT id, name, email, role, password_hash, created_at
		FROM users WHERE name = ?`, name)
	return scanUser(row)
}

// GetUserByID retrieves a user by ID
func (db *DB) GetUserByID(id uuid.UUID) (*models.User, error) {
	row := db.QueryRow(`
		SELECT id, name, email, role, password_hash, created_at
		FROM users WHERE id = ?`, id.String())
	user, _, err := scanUser(row)
	return user, err
}

func scanUser(row *sql.Row) (*models.User, string, error) {
	var (
		user         models.User
		idStr, role  string
		email        sql.NullString
		passwordHash string
	)
	err := row.Scan(&idStr, &user.Name, &email, &role, &passwordHash, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", err
	}
	user.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, "", fmt.Errorf("corrupt user id %q: %w", idStr, err)
	}
	user.Email = email.String
	user.Role = models.Role(role)
	return &user, passwordHash, nil
}

// CreateSession stores a session token hash for a user
func (db *DB) CreateSession(userID uuid.UUID, tokenHash string, expiresAt time.Time) error {
	_, err := db.Exec(`
		INSERT INTO sessions (token_hash, user_id, created_at, expires_at)
		VALUES (?, ?, ?, ?)`,
		tokenHash, userID.String(), time.Now(), expiresAt)
	return err
}

// GetSessionUser returns the user owning an unexpired session token hash
func (db *DB) GetSessionUser(tokenHash string) (*models.User, error) {
	var (
		userIDStr string
		expiresAt time.Time
	)
	err := db.QueryRow(`SELECT user_id, expires_at FROM sessions WHERE token_hash = ?`, tokenHash).
		Scan(&userIDStr, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if time.Now().After(expiresAt) {
		return nil, ErrNotFound
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return nil, fmt.Errorf("corrupt session user id %q: %w", userIDStr, err)
	}
	return db.GetUserByID(userID)
}

// DeleteSession removes a session
func (db *DB) DeleteSession(tokenHash string) error {
	_, err := db.Exec(`DELETE FROM sessions WHERE token_hash = ?`, tokenHash)
	return err
}

// CreateMessage inserts a message. ID and CreatedAt must be set.
func (db *DB) CreateMessage(msg models.Message) error {
	if msg.ID == "" || msg.CreatedAt == nil {
		return fmt.Errorf("message requires an id and a timestamp")
	}
	_, err := db.Exec(`
		INSERT INTO messages (id, text, sender, grp, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.Text, msg.Sender, msg.Group, *msg.CreatedAt)
	return err
}

// ListMessages returns the latest messages in server order, oldest first.
// An empty group lists every group; limit <= 0 means no limit.
func (db *DB) ListMessages(group string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = -1
	}

	query := `
		SELECT id, text, sender, grp, created_at FROM (
			SELECT seq, id, text, sender, grp, created_at
			FROM messages
			WHERE (? = '' OR grp = ?)
			ORDER BY seq DESC
			LIMIT ?
		) ORDER BY seq ASC`

	rows, err := db.Query(query, group, group, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var (
			msg       models.Message
			createdAt time.Time
		)
		if err := rows.Scan(&msg.ID, &msg.Text, &msg.Sender, &msg.Group, &createdAt); err != nil {
			return nil, err
		}
		msg.CreatedAt = &createdAt
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

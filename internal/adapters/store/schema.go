package store

import "fmt"

// Dialect selects the SQL flavour of a message store
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite3"
	DialectMySQL    Dialect = "mysql"
	DialectPostgres Dialect = "postgres"
)

const messageColumns = `canonical_id, account_id, uid, from_name, from_email, recipients,
	subject, text_body, html_body, folder, is_read, received_at, attachments,
	category, confidence, classification`

const messageValues = `:canonical_id, :account_id, :uid, :from_name, :from_email, :recipients,
	:subject, :text_body, :html_body, :folder, :is_read, :received_at, :attachments,
	:category, :confidence, :classification`

func schema(d Dialect) []string {
	switch d {
	case DialectMySQL:
		return []string{`
			CREATE TABLE IF NOT EXISTS messages (
				canonical_id VARCHAR(512) NOT NULL PRIMARY KEY,
				account_id VARCHAR(255) NOT NULL,
				uid BIGINT NOT NULL DEFAULT 0,
				from_name VARCHAR(512) NOT NULL DEFAULT '',
				from_email VARCHAR(320) NOT NULL DEFAULT '',
				recipients MEDIUMTEXT NOT NULL,
				subject TEXT NOT NULL,
				text_body MEDIUMTEXT NOT NULL,
				html_body MEDIUMTEXT NOT NULL,
				folder VARCHAR(255) NOT NULL DEFAULT '',
				is_read BOOLEAN NOT NULL DEFAULT FALSE,
				received_at DATETIME(6) NOT NULL,
				attachments MEDIUMTEXT NOT NULL,
				category VARCHAR(32) NOT NULL DEFAULT '',
				confidence DOUBLE NOT NULL DEFAULT 0,
				classification TEXT NOT NULL,
				INDEX idx_messages_received_at (received_at),
				INDEX idx_messages_account (account_id, received_at)
			) DEFAULT CHARSET=utf8mb4`,
			`
			CREATE TABLE IF NOT EXISTS purged_messages (
				canonical_id VARCHAR(512) NOT NULL PRIMARY KEY,
				purged_at DATETIME(6) NOT NULL
			) DEFAULT CHARSET=utf8mb4`,
		}
	case DialectPostgres:
		return []string{`
			CREATE TABLE IF NOT EXISTS messages (
				canonical_id TEXT PRIMARY KEY,
				account_id TEXT NOT NULL,
				uid BIGINT NOT NULL DEFAULT 0,
				from_name TEXT NOT NULL DEFAULT '',
				from_email TEXT NOT NULL DEFAULT '',
				recipients TEXT NOT NULL,
				subject TEXT NOT NULL,
				text_body TEXT NOT NULL,
				html_body TEXT NOT NULL,
				folder TEXT NOT NULL DEFAULT '',
				is_read BOOLEAN NOT NULL DEFAULT FALSE,
				received_at TIMESTAMPTZ NOT NULL,
				attachments TEXT NOT NULL,
				category TEXT NOT NULL DEFAULT '',
				confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
				classification TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_messages_received_at ON messages(received_at)`,
			`CREATE INDEX IF NOT EXISTS idx_messages_account ON messages(account_id, received_at)`,
			`
			CREATE TABLE IF NOT EXISTS purged_messages (
				canonical_id TEXT PRIMARY KEY,
				purged_at TIMESTAMPTZ NOT NULL
			)`,
		}
	default:
		return []string{`
			CREATE TABLE IF NOT EXISTS messages (
				canonical_id TEXT PRIMARY KEY,
				account_id TEXT NOT NULL,
				uid INTEGER NOT NULL DEFAULT 0,
				from_name TEXT NOT NULL DEFAULT '',
				from_email TEXT NOT NULL DEFAULT '',
				recipients TEXT NOT NULL,
				subject TEXT NOT NULL,
				text_body TEXT NOT NULL,
				html_body TEXT NOT NULL,
				folder TEXT NOT NULL DEFAULT '',
				is_read BOOLEAN NOT NULL DEFAULT 0,
				received_at TIMESTAMP NOT NULL,
				attachments TEXT NOT NULL,
				category TEXT NOT NULL DEFAULT '',
				confidence REAL NOT NULL DEFAULT 0,
				classification TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_messages_received_at ON messages(received_at)`,
			`CREATE INDEX IF NOT EXISTS idx_messages_account ON messages(account_id, received_at)`,
			`
			CREATE TABLE IF NOT EXISTS purged_messages (
				canonical_id TEXT PRIMARY KEY,
				purged_at TIMESTAMP NOT NULL
			)`,
		}
	}
}

// insertIgnore returns an insert that leaves an existing row untouched
func insertIgnore(d Dialect) string {
	switch d {
	case DialectMySQL:
		return fmt.Sprintf("INSERT IGNORE INTO messages (%s) VALUES (%s)", messageColumns, messageValues)
	case DialectPostgres:
		return fmt.Sprintf("INSERT INTO messages (%s) VALUES (%s) ON CONFLICT (canonical_id) DO NOTHING", messageColumns, messageValues)
	default:
		return fmt.Sprintf("INSERT OR IGNORE INTO messages (%s) VALUES (%s)", messageColumns, messageValues)
	}
}

// tombstoneExpired records the ids of messages about to be purged so they
// are not ingested again
func tombstoneExpired(d Dialect) string {
	const sel = "SELECT canonical_id, CURRENT_TIMESTAMP FROM messages WHERE received_at < ?"
	switch d {
	case DialectMySQL:
		return "INSERT IGNORE INTO purged_messages (canonical_id, purged_at) " + sel
	case DialectPostgres:
		return "INSERT INTO purged_messages (canonical_id, purged_at) " + sel + " ON CONFLICT (canonical_id) DO NOTHING"
	default:
		return "INSERT OR IGNORE INTO purged_messages (canonical_id, purged_at) " + sel
	}
}

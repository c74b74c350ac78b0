package database

import (
	"database/sql"
	"log"
	"sync"

	_ "github.com/lib/pq"

	"github.com/ledgerscan/ledgerscan/cache"
	"github.com/ledgerscan/ledgerscan/config"
)

// Declare a package-level variable to hold the singleton instance.
// Ensure the instance is not accessible outside the package.
var instance *Datasource
var once sync.Once

type Datasource struct {
	Conn  *sql.DB
	Cache cache.Cache
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	con, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	return con, nil
}

// GetDBConnection provides a global access point to the instance and initializes it if it's not already.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := ConnectDB(configuration.DataSource.Dns)
		if errConn != nil {
			err = errConn
			return
		}
		instance = &Datasource{Conn: con, Cache: nil}
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dns)
	if err != nil {
		return nil, err
	}
	err = db.Ping()
	if err != nil {
		log.Printf("database Connection error ❌: %v", err)
		return nil, err
	}
	err = createDocumentTable(db)
	if err != nil {
		return nil, err
	}
	err = createJobTable(db)
	if err != nil {
		return nil, err
	}
	err = createTransactionTable(db)
	if err != nil {
		return nil, err
	}
	err = createConversationTurnTable(db)
	if err != nil {
		return nil, err
	}
	err = createMemoryFactTable(db)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// createDocumentTable creates a PostgreSQL table for the Document struct
func createDocumentTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS documents (
			id SERIAL PRIMARY KEY,
			document_id TEXT NOT NULL UNIQUE,
			owner_id TEXT NOT NULL,
			source_type TEXT NOT NULL,
			original_filename TEXT,
			mime_type TEXT,
			storage_path TEXT NOT NULL,
			redacted_path TEXT,
			status TEXT NOT NULL CHECK (status IN ('pending', 'processing', 'ready', 'rejected')),
			rejection_reason TEXT,
			ocr_provider TEXT,
			pii_redacted BOOLEAN NOT NULL DEFAULT FALSE,
			needs_review BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
			meta_data JSONB
		)
	`)
	if err != nil {
		log.Printf("Error creating documents table: %v", err)
	}
	return err
}

// createJobTable creates a PostgreSQL table for the Job struct. The partial
// index keeps the claim query fast as completed jobs accumulate.
func createJobTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS jobs (
			id SERIAL PRIMARY KEY,
			job_id TEXT NOT NULL UNIQUE,
			kind TEXT NOT NULL,
			payload_ref TEXT NOT NULL,
			status TEXT NOT NULL CHECK (status IN ('pending', 'claimed', 'completed', 'failed')),
			retry_count INT NOT NULL DEFAULT 0,
			max_retries INT NOT NULL DEFAULT 3,
			error_message TEXT,
			claimed_at TIMESTAMP,
			completed_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_jobs_claimable
			ON jobs (kind, created_at) WHERE status = 'pending'
	`)
	if err != nil {
		log.Printf("Error creating jobs table: %v", err)
	}
	return err
}

// createTransactionTable creates a PostgreSQL table for the Transaction struct
func createTransactionTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS transactions (
			id SERIAL PRIMARY KEY,
			transaction_id TEXT NOT NULL UNIQUE,
			document_id TEXT NOT NULL REFERENCES documents(document_id),
			owner_id TEXT NOT NULL,
			date TIMESTAMP,
			vendor TEXT,
			raw_description TEXT,
			amount NUMERIC NOT NULL,
			currency TEXT,
			category TEXT NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			meta_data JSONB
		)
	`)
	if err != nil {
		log.Printf("Error creating transactions table: %v", err)
	}
	return err
}

func createConversationTurnTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS conversation_turns (
			id SERIAL PRIMARY KEY,
			turn_id TEXT NOT NULL UNIQUE,
			user_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			text TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		log.Printf("Error creating conversation_turns table: %v", err)
	}
	return err
}

func createMemoryFactTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS memory_facts (
			id SERIAL PRIMARY KEY,
			fact_id TEXT NOT NULL UNIQUE,
			user_id TEXT NOT NULL,
			session_id TEXT,
			kind TEXT,
			content TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		log.Printf("Error creating memory_facts table: %v", err)
	}
	return err
}

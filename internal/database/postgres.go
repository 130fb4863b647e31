package database

import (
	"database/sql"
	"fmt"
)

type PgProjectRepository struct {
	conn *sql.DB
}

func NewPgProjectRepository(dsn string) (*PgProjectRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &PgProjectRepository{conn: db}, nil
}

func (db *PgProjectRepository) Ping() error {
	return db.conn.Ping()
}

func (db *PgProjectRepository) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

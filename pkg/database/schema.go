package database

import (
	"database/sql"
	"fmt"
)

// SchemaValidator checks a database against the structure the store
// manager expects. Run after migrations during startup verification.
type SchemaValidator struct {
	db *sql.DB
}

// NewSchemaValidator creates a validator over an open database.
func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{db: db}
}

// ValidateTablesExist verifies that every required table exists.
func (v *SchemaValidator) ValidateTablesExist() error {
	requiredTables := map[string]string{
		"users":              "identity storage",
		"messages":           "direct message storage",
		"notifications":      "notification storage",
		"notification_reads": "notification read receipts",
		"schema_migrations":  "migration tracking",
	}

	for table, description := range requiredTables {
		exists, err := v.tableExists(table)
		if err != nil {
			return fmt.Errorf("error checking table %s (%s): %w", table, description, err)
		}
		if !exists {
			return fmt.Errorf("required table %s (%s) does not exist", table, description)
		}
	}

	return nil
}

// ValidateIndexes verifies that the query-path indexes exist.
func (v *SchemaValidator) ValidateIndexes() error {
	requiredIndexes := map[string]string{
		"idx_messages_receiver_read": "unread lookups",
		"idx_messages_conversation":  "conversation history",
		"idx_notifications_created":  "notification listing",
		"idx_notifications_role":     "role-targeted notifications",
	}

	for index, purpose := range requiredIndexes {
		exists, err := v.indexExists(index)
		if err != nil {
			return fmt.Errorf("error checking index %s (%s): %w", index, purpose, err)
		}
		if !exists {
			return fmt.Errorf("required index %s (%s) does not exist", index, purpose)
		}
	}

	return nil
}

func (v *SchemaValidator) tableExists(tableName string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?",
		tableName,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (v *SchemaValidator) indexExists(indexName string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?",
		indexName,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

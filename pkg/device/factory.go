package device

import (
	"fmt"
)

// NewRepository creates a device repository based on the persistence type.
// db is only used by the postgres repository.
func NewRepository(persistenceType string, db DB) (Repository, error) {
	switch persistenceType {
	case "postgres", "postgresql":
		if db == nil {
			return nil, fmt.Errorf("db required for postgres repository")
		}
		return NewPostgresRepository(db), nil
	case "inmem", "memory", "":
		return NewInMemRepository(), nil
	default:
		return nil, fmt.Errorf("unsupported persistence type: %s (supported: postgres, inmem)", persistenceType)
	}
}

package sessions

import "fmt"

// NewRepository creates a session repository based on the persistence type
func NewRepository(persistenceType string, db DBTX) (Repository, error) {
	switch persistenceType {
	case "postgres", "postgresql":
		if db == nil {
			return nil, fmt.Errorf("db required for postgres repository")
		}
		return NewPostgresRepository(db), nil
	case "inmem", "memory", "":
		return NewInMemRepository(), nil
	default:
		return nil, fmt.Errorf("unsupported persistence type: %s", persistenceType)
	}
}

package account

import "fmt"

// NewRepository creates the repository for a persistence type ("postgres" or "inmem").
// db is only used by the postgres repository.
func NewRepository(persistenceType string, db DBTX) (Repository, error) {
	switch persistenceType {
	case "postgres":
		if db == nil {
			return nil, fmt.Errorf("postgres account repository requires a database connection")
		}
		return NewPostgresRepository(db), nil
	case "inmem", "memory", "":
		return NewInMemRepository(), nil
	default:
		return nil, fmt.Errorf("unsupported persistence type: %s", persistenceType)
	}
}

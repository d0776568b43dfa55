package store

import "github.com/pkg/errors"

// Open returns the store for driver: "memory", "sqlite" or "postgres".
func Open(driver, dsn string) (Store, error) {
	switch driver {
	case "memory", "":
		return NewMemory(), nil
	case "sqlite", "postgres":
		return OpenGorm(driver, dsn)
	default:
		return nil, errors.Errorf("unknown store driver %q", driver)
	}
}

package storage

import (
	"errors"
	"strings"
	"time"

	logx "eventbell/pkg/logx"
)

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	switch driver {
	case "notion":
		return openNotion(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "":
		return nil, errors.New("store.driver is required")
	default:
		return nil, errors.New("unknown store driver: " + driver)
	}
}

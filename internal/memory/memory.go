package memory

import (
	"fmt"

	"github.com/soyeahso/delegent/internal/config"
	"github.com/soyeahso/delegent/internal/logging"
)

// Open opens the backend named by cfg at path.
func Open(cfg config.MemoryConfig, path string, log *logging.Logger) (Store, error) {
	switch cfg.Backend {
	case "", config.MemoryFile:
		return OpenFile(path, log)
	case config.MemorySQLite:
		return OpenSQLite(path, log)
	default:
		return nil, fmt.Errorf("unknown memory backend %q", cfg.Backend)
	}
}

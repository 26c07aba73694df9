package reglog

import (
	"github.com/truewear/go-registrar/internal/config"
	"github.com/truewear/go-registrar/internal/txerrors"
)

// Open returns the store selected by cfg.Backend.
//
//nolint:ireturn
func Open(cfg config.RegLog) (Store, error) {
	switch cfg.Backend {
	case config.LogBackendJSON, "":
		return NewJSONStore(cfg.File), nil
	case config.LogBackendSQLite:
		return NewSQLiteStore(cfg.SQLitePath)
	default:
		return nil, txerrors.Configuration("unknown log backend " + cfg.Backend)
	}
}

package corrections

import (
	"context"
	"log/slog"
	"strings"

	"github.com/showledger/receipt-pipeline/internal/common"
)

// Open selects a store implementation by DSN scheme: postgres DSNs get the
// pgx pool, everything else is treated as a sqlite path.
func Open(ctx context.Context, cfg common.StoreConfig, logger *slog.Logger) (Store, error) {
	if cfg.DSN == "" {
		return nil, common.NewAppError("CONFIG_ERROR", "store.dsn is required", common.ErrInvalidInput)
	}
	if strings.HasPrefix(cfg.DSN, "postgres://") || strings.HasPrefix(cfg.DSN, "postgresql://") {
		pg, err := OpenPostgres(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		return pg, nil
	}
	return OpenSQLite(ctx, cfg.DSN, logger)
}

// Package pg bootstraps the PostgreSQL layer: a pgx/v5 connection pool
// with startup retry, goose schema migrations, a health check, and
// error classification helpers.
//
// The classification helpers matter beyond convenience here: the
// webhook idempotency guard and the ledger's duplicate-reference
// detection both map unique-constraint violations (via
// IsDuplicateKeyError) to their domain errors instead of treating them
// as failures.
//
//	var cfg pg.Config
//	_ = config.Load(&cfg)
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, cfg, slog.Default()); err != nil {
//		log.Fatal(err)
//	}
package pg

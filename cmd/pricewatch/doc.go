// Package main hosts the pricewatch service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api exposes health, metrics, rule management and manual
//     pass endpoints. The chat front end creates rules through it; creation fetches
//     the product page once and rejects URLs no extractor understands.
//   - Scheduler: internal/monitor runs one pass every poll interval. Each pass
//     loads every rule, fetches pages through the rate controller (bounded
//     concurrency plus start pacing), extracts snapshots, writes observations and
//     sends edge-triggered notifications. A failing rule never aborts the pass.
//   - Extraction: internal/extract holds per-shop extractors (goquery selectors,
//     JSON-LD and meta tags) selected by host.
//   - Persistence: rules live in memory, Postgres (pgx) or SQLite. Pages that stop
//     parsing are archived to memory, local disk or GCS for selector repair.
//   - Delivery: notifications go to the log, Pub/Sub or a Telegram bot.
//
// Quick checklist:
//   - Configure env vars: PRICEWATCH_SERVER_PORT, PRICEWATCH_MONITOR_POLL_INTERVAL_SECONDS,
//     PRICEWATCH_STORAGE_DRIVER with PRICEWATCH_DB_DSN or PRICEWATCH_SQLITE_PATH,
//     PRICEWATCH_NOTIFIER_DRIVER with the pubsub or telegram settings.
//   - Run locally: go run ./cmd/pricewatch -config config.yaml (or rely on env overrides).
//   - The process drains on SIGTERM: the HTTP server stops accepting requests and
//     the current pass finishes writing its observations before exit.
package main

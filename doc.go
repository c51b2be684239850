// Package main hosts the socialcards CLI entrypoint.
//
// Architecture overview:
//   - Plan phase (socialcards plan): internal/planner runs the configured content query (frontmatter files or a
//     JSON manifest from internal/content), asks internal/inventory which card PNGs already exist under the output
//     root, and plans one job per page and card size whose image is missing. Every planned job is registered as a
//     card page in the manifest written by internal/site, and the whole batch overwrites the cache entry
//     "socialCardPages".
//   - Hand-off: internal/cache stores the batch between processes. The file backend is the default; memory,
//     Postgres, SQLite, Redis and Cloud Storage backends share the same JSON document format.
//   - Capture phase (socialcards capture): internal/runner reads the batch once and drives internal/capture
//     strictly sequentially. Each job gets a fresh Chromedp browser with a viewport of exactly the card size, a fixed
//     quiescence wait, a clipped screenshot, and an atomic write of the PNG. A failed job is logged and skipped.
//   - Reporting: a RunReport summarizes every run; internal/notify optionally publishes it to Pub/Sub and
//     internal/metrics optionally pushes Prometheus collectors to a push gateway.
//   - Configuration & plumbing: Viper populates config from .env, an optional YAML file and SOCIALCARDS_* variables;
//     zap provides structured logging; cobra wires the commands and owns the App lifecycle.
//
// Operational notes:
//   - Activation: both phases are no-ops unless the activation variable (SITE_EXECUTING_COMMAND by default) contains
//     the configured match, or activation.force is set.
//   - Concurrency model: captures run one at a time, so at most one browser is alive.
//   - socialcards watch keeps capturing every time the plan phase rewrites the file cache, for dev servers.
package main

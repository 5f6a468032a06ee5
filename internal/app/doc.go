// Package app provides the application composition layer for the engagement
// engine.
//
// # Architecture Role
//
// The app package composes the engine's services into a running application.
// It is NOT a business logic layer - business logic belongs in the service
// packages under internal/app/services/.
//
// # Package Structure
//
//	internal/app/
//	├── application.go      # Application struct, wiring, and lifecycle
//	├── domain/             # Domain models (pure data structures)
//	│   ├── activity/       # Raw activity records and board kinds
//	│   ├── identity/       # Sessions and resolved identities
//	│   ├── leaderboard/    # Board entries and pages
//	│   └── quota/          # Attempt budget status
//	├── storage/            # Store interfaces and implementations
//	│   ├── interfaces.go   # KeyValueStore, AnalyticsStore
//	│   ├── memory/         # In-memory implementation for tests and dev
//	│   ├── redis/          # Redis record store for production
//	│   └── postgres/       # Postgres analytics archive
//	├── services/           # Business logic per concern
//	│   ├── activity/       # Record writes and raw record scanning
//	│   ├── game/           # Score plausibility validation
//	│   ├── identity/       # Session registration and resolution
//	│   ├── leaderboard/    # Board building, cache, feed, refresher
//	│   ├── quota/          # Daily attempt counters
//	│   └── seed/           # Idempotent demo content seeding
//	├── httpapi/            # HTTP handlers and routing
//	├── metrics/            # Prometheus collectors
//	├── system/             # Lifecycle manager for background services
//	└── runtime/            # Process shell: config, stores, HTTP server
//
// # Responsibilities
//
// The app package is responsible for:
//
//   - Composing services with their stores and logger
//   - Normalizing missing stores to the in-memory implementation
//   - Registering background runners with the lifecycle manager
//   - Exposing the wired services to the HTTP layer
//
// # Example: Adding a New Board Kind
//
// When adding a new kind (e.g., "trivia"):
//
//  1. Add the kind constant and parsing in internal/app/domain/activity/
//  2. Add its physical key prefixes to the scanner in services/activity/
//  3. Seed its content document in services/seed/
//  4. The leaderboard, quota, and HTTP layers pick it up from Kinds()
package app

// Package app groups the application composition for the data migration
// worker and the API service.
//
// # Package Structure
//
//	internal/app/
//	├── domain/person/      # Person model and seed row factory
//	├── storage/            # Storage interfaces and the in-memory store
//	│   └── postgres/       # PostgreSQL implementation (test.people)
//	├── httpapi/            # HTTP handlers and routing for the API service
//	├── metrics/            # Prometheus registry for HTTP and worker metrics
//	└── runtime/            # Application and MigrationJob wiring
//
// # Dependency Direction
//
//	cmd/datamigrations/   cmd/apiservice/
//	        │                    │
//	        ▼                    ▼
//	internal/app/runtime (composition)
//	        │
//	        ├──► internal/worker ──► internal/seed ──► internal/appconfig
//	        │                            │
//	        │                            └──► internal/app/storage/postgres
//	        ├──► internal/platform/migrations
//	        ├──► internal/database (pool, retries, transactions)
//	        └──► internal/app/httpapi ──► internal/middleware
//
// Storage and domain packages never import runtime or httpapi.
package app

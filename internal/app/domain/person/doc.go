// Package person defines the person records seeded by the migration worker
// and served by the API.
package person

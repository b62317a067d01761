// Package stores persists compiled plans and run history in SQLite so
// external runners can pick plans up and report progress back.
package stores

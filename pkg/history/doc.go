// Package history persists assignment operation records. The in-memory
// store backs tests and local mode, the postgres store is the durable
// backend, and the s3 archiver exports terminal records for audit.
package history

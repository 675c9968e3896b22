// Package api provides the HTTP handlers for the grantor REST API.
//
// # Overview
//
// The server exposes the access grant workflow over JSON endpoints:
// full grant provisioning, lightweight assignments, bulk assignment
// batches, operation history and rollback, grant validation, and the
// permission template catalog.
//
// # Endpoints
//
//	POST /api/v1/grants                       Create an access grant end to end
//	GET  /api/v1/grants                       List grant groups (?environment=)
//	GET  /api/v1/grants/{name}/validate       Validate an existing grant by group name
//	POST /api/v1/assignments                  Attach a group to a permission set
//	POST /api/v1/assignments/bulk             Attach a batch of assignments
//	GET  /api/v1/operations                   List operation records (?status=&kind=&limit=)
//	GET  /api/v1/operations/{id}              Fetch one operation record
//	POST /api/v1/operations/{id}/rollback     Roll back a completed operation
//	GET  /api/v1/templates                    List permission templates
//
// # Usage Example
//
//	server := api.NewServer(orch, cat, logger, metrics)
//	http.ListenAndServe(":8080", server)
//
// # Error Mapping
//
// Workflow errors carry machine-readable codes. Validation rejections map
// to 400, detected conflicts and non-rollbackable operations to 409,
// unknown operations to 404, and execution failures to 500. When an
// operation record exists it is attached to the error body so callers can
// inspect the full error list and per-assignment statuses.
//
// # Related Packages
//
//   - pkg/orchestrator: Workflow engine the handlers delegate to
//   - pkg/catalog: Permission template catalog served by /templates
//   - pkg/httputil: Request parsing and response helpers
package api

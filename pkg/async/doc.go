// Package async provides safe goroutine execution helpers.
//
// # Overview
//
// Background work launched from request handlers or schedulers goes through
// SafeGo instead of a bare `go func()`: every task gets a bounded lifetime,
// panic recovery, and error logging, so a misbehaving task can neither leak
// nor crash the process.
//
// # Usage Example
//
//	async.SafeGo(ctx, 30*time.Second, "grant revalidation", logger, func(ctx context.Context) error {
//		return revalidator.RunOnce(ctx)
//	})
//
// # Related Packages
//
//   - pkg/revalidate: Runs scheduled sweeps through SafeGo
//   - pkg/observability: Supplies the structured logger
package async

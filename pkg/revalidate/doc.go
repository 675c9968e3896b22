// Package revalidate periodically re-checks every known access grant.
//
// # Overview
//
// Grants drift: a group can fall out of synchronization, a permission set
// can be deleted out of band, an assignment can be removed in the console.
// The revalidator sweeps all grant groups on a cron schedule, produces a
// validation report per grant, flags the unhealthy ones, and invalidates
// the cached sync status for any group that no longer checks out so the
// next live read sees the truth.
//
// # Usage Example
//
//	rv := revalidate.New(orch, cache, logger, metrics, revalidate.Config{
//		Schedule: "0 */6 * * *",
//	})
//	if err := rv.Start(); err != nil {
//		log.Fatal(err)
//	}
//	defer rv.Stop()
//
// # Related Packages
//
//   - pkg/orchestrator: Supplies listing and per-grant validation
//   - pkg/platform: Sync status cache invalidated on degraded grants
package revalidate

// Package conflict detects assignment conflicts before any platform
// mutation: duplicates against existing account assignments, duplicates
// within a proposed batch, and groups that have not synchronized into the
// platform identity store. Detection fails closed: any error reading
// existing state aborts the whole batch.
package conflict

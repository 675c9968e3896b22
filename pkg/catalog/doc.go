// Package catalog loads named permission templates from a YAML file,
// hot-reloads the file on change, and resolves templates (with optional
// request-level overrides) into permission set specs.
package catalog

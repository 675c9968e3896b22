// Package cli implements the grantor command line client.
//
// # Overview
//
// The CLI talks to a running grantor server over its REST API. Each
// subcommand maps onto one endpoint: creating grants and assignments,
// listing and validating grants, inspecting and rolling back operations,
// and listing permission templates.
//
// # Usage Example
//
//	grantor-cli grant -environment Dev -ticket AG-0042 -owners a@example.com -template readonly
//	grantor-cli grants -environment Dev
//	grantor-cli validate -group CE-AWS-Dev-AG-0042
//	grantor-cli rollback -id op-1234
//
// # Related Packages
//
//   - pkg/api: The server these commands call
package cli

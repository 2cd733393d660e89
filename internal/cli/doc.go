// Package cli implements the command-line interface for jamd-events.
//
// The root command loads the YAML configuration and exposes three
// subcommands: sync (fetch, reconcile, persist, announce), list (print the
// tracked events) and prune (a reconciliation pass with no new records).
// Command output goes to stdout as text or JSON; logs go to stderr.
package cli

// Package config loads the jamd-events YAML configuration.
//
// A missing file is not an error: every key has a default, and Normalize
// fills whatever a partial file leaves out. Credentials are never read
// from the file, only from the environment.
package config

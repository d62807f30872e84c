// Package source implements document listings for collection runs: an
// HTTP JSON API source for production use and a deterministic in-memory
// source for examples and tests. Both satisfy the coordinator's
// Collector and Navigator capabilities.
package source

// Package run orchestrates story video generation runs.
//
// An Orchestrator owns a single current Run. Submit moves it through
// Submitting and InProgress to Succeeded or Failed while a background poller
// reads the remote run log every poll interval. Status only moves forward and
// a new submission replaces a finished run. Readers get value snapshots via
// Snapshot or Subscribe.
package run

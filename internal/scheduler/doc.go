// Package scheduler triggers reminder runs in daemon mode.
//
// Triggering is cron-based (robfig/cron). Runs never overlap: a tick that
// fires while the previous run is still going is skipped, and a panicking
// run is recovered and logged.
package scheduler

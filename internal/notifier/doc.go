// Package notifier formats event reminders and delivers them through the first
// channel, in priority order, that accepts them.
//
// # Fallback
//
// Channels are tried in the configured order. A channel whose Configured check
// fails is skipped with a warning. The first successful delivery wins; the
// dispatch fails only when every configured channel fails or none is configured.
// There are no retries within a dispatch.
//
// # History
//
// For operator visibility, the dispatcher keeps a small in-memory history of
// recent delivery outcomes.
package notifier

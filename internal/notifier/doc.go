// Package notifier announces newly tracked events.
//
// Announcements are best effort: the ledger and calendar are already
// committed when a notifier runs, so callers log a failed announcement
// instead of failing the run. Three channels exist: a dry run that prints
// messages, Twitter (OAuth1 user context) and a Telegram bot chat.
package notifier

// Package event provides the in-process event bus used by the
// execution engine to publish decision, human-input, node-result, and
// run-completion events. Subscriptions are explicit handles that the
// subscriber cancels when done; publishing never blocks the caller.
package event

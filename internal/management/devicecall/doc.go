// Package devicecall performs correlated request/reply calls to devices over
// a publish/subscribe transport.
//
// Each call moves through IDLE -> SENT -> {REPLIED | TIMED_OUT | SEND_FAILED}.
// REPLIED and TIMED_OUT race: a reply can land just as the deadline fires.
// Both sides claim the call with a compare-and-swap and only the winner
// delivers its outcome, so the caller always observes exactly one.
//
// Late replies find no pending call and are logged and dropped.
package devicecall

// Package audit keeps the append-only activity trail in the audit_logs
// table.
//
// Device management calls reach it through CallRecorder, a call.Observer
// that queues one entry per call and writes them serially from Run so the
// calling goroutine never waits on SQLite.
package audit

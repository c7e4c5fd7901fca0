// Package state owns the persisted HQ state.
//
// Manager is the only reader and writer of the state file. Every read happens
// under a shared lock and every write under an exclusive lock held for the whole
// load-merge-save sequence, so no caller ever observes a partially written file.
// Each transition is announced through the event dispatcher: before-events may
// replace the payload or veto, after-events fire once the lock is released.
//
// Nothing is cached between calls; every operation re-reads the file.
// Operations do not retry and cannot be canceled once the lock is held.
package state

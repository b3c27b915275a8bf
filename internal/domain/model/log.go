package model

import "time"

// LogOrigin describes where a raw log came from.
type LogOrigin struct {
	Workflow  string
	Job       string
	StepIndex int
	Timestamp time.Time
}

// Log is an immutable raw byte sequence plus its origin descriptor.
type Log struct {
	Text   string
	Origin LogOrigin
}

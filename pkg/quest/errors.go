package quest

import "fmt"

// PersistenceError aborts a turn: nothing is sent and the session is left
// as it was, so a redelivered message is processed again.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

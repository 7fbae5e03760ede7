package canvas

import "fmt"

// StoreInitError means the backing store could not be created. The server must
// not start serving traffic when this is returned.
type StoreInitError struct {
	Path string
	Err  error
}

func (e *StoreInitError) Error() string {
	return fmt.Sprintf("failed to initialise canvas store %s: %v", e.Path, e.Err)
}

func (e *StoreInitError) Unwrap() error { return e.Err }

// StoreReadError covers a missing, unreadable, corrupt or wrongly sized canvas.
type StoreReadError struct {
	Err error
}

func (e *StoreReadError) Error() string {
	return fmt.Sprintf("failed to read canvas: %v", e.Err)
}

func (e *StoreReadError) Unwrap() error { return e.Err }

type StoreWriteError struct {
	Err error
}

func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("failed to write canvas: %v", e.Err)
}

func (e *StoreWriteError) Unwrap() error { return e.Err }

// DecodeError is returned for client supplied payloads that are not a usable image.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode overlay: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

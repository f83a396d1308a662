package bridge

import "fmt"

// ConnectionError reports a transport-level failure: the websocket handshake
// failed, timed out, was refused, or an established channel died with an
// abnormal close. Fatal to the session.
type ConnectionError struct {
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("bridge: connection to %s failed: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// MalformedFrameError reports a binary message that cannot be interpreted as
// int16 PCM. Recovered locally: the message is logged and dropped, the
// session continues.
type MalformedFrameError struct {
	Size int
}

func (e *MalformedFrameError) Error() string {
	return fmt.Sprintf("bridge: binary message of %d bytes is not valid int16 PCM", e.Size)
}

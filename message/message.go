// Package message defines the envelope carried inside a frame payload by
// typed service calls. Raw Send traffic does not use it.
package message

import "errors"

// RPCMessage carries one typed call or its reply.
//
//   - request:  ServiceMethod names the target, Payload holds the encoded args.
//   - response: Payload holds the encoded reply; Error is set if the call failed.
type RPCMessage struct {
	ServiceMethod string `json:"service_method"` // "Service.Method", e.g. "Arith.Add"
	Error         string `json:"error,omitempty"`
	Payload       []byte `json:"payload,omitempty"`
}

// Failed builds a response carrying err.
func Failed(serviceMethod string, err error) *RPCMessage {
	return &RPCMessage{ServiceMethod: serviceMethod, Error: err.Error()}
}

// Err returns the remote error of a response, or nil.
func (m *RPCMessage) Err() error {
	if m.Error == "" {
		return nil
	}
	return &RemoteError{ServiceMethod: m.ServiceMethod, Message: m.Error}
}

// RemoteError is an error returned by the service on the other end.
type RemoteError struct {
	ServiceMethod string
	Message       string
}

func (e *RemoteError) Error() string {
	if e.ServiceMethod == "" {
		return "remote: " + e.Message
	}
	return e.ServiceMethod + ": " + e.Message
}

// IsRemote reports whether err came from the remote service rather than the transport.
func IsRemote(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}

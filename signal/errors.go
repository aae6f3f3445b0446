package signal

import "fmt"

// DecodeError is returned when a payload cannot be decoded against its message.
type DecodeError struct {
	Message string
	Signal  string
	Raw     uint64
	Reason  string
}

func (e DecodeError) Error() string {
	if e.Signal == "" {
		return fmt.Sprintf("decode %s: %s", e.Message, e.Reason)
	}
	return fmt.Sprintf("decode %s.%s (raw 0x%X): %s", e.Message, e.Signal, e.Raw, e.Reason)
}

// EncodeError is returned when a record value cannot be written into its signal.
type EncodeError struct {
	Message string
	Signal  string
	Value   interface{}
	Reason  string
}

func (e EncodeError) Error() string {
	return fmt.Sprintf("encode %s.%s (%v): %s", e.Message, e.Signal, e.Value, e.Reason)
}

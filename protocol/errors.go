package protocol

import "errors"

var (
	ErrInvalidPayload   = errors.New("invalid payload size")
	ErrTimeout          = errors.New("operation timed out")
	ErrInvalidAddress   = errors.New("invalid address")
	ErrInvalidFrequency = errors.New("invalid frequency (valid range: 240-960 MHz)")
	ErrInvalidKey       = errors.New("invalid encryption key (want 16 bytes)")
	ErrBadFrame         = errors.New("malformed frame")
	ErrDecrypt          = errors.New("decrypt: authentication failed")
	ErrRadioInit        = errors.New("radio init failed")
)

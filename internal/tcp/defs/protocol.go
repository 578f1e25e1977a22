package defs

import "time"

// Protocol constants
const (
	MagicNumber uint16 = 0xCAFE
	HeaderSize         = 8

	// Message types
	MsgClientHello   byte = 0x01
	MsgExecutorHello byte = 0x02
	MsgSubmitJob     byte = 0x03
	MsgCancelJob     byte = 0x04
	MsgJobResult     byte = 0x05
	MsgJobFailure    byte = 0x06
	MsgJobStarted    byte = 0x07
	MsgJobCancelled  byte = 0x08
	MsgError         byte = 0x09

	// MaxPayloadSize bounds a single frame body
	MaxPayloadSize = 64 << 20

	// Configuration constants
	InitialRegistrationTimeout = 30 * time.Second
	ConnectionRetryDelay       = 1 * time.Second

	ProtocolVersion = 1
)

// Error codes carried in ErrorData
const (
	ErrCodeUnknownMessage = 1001
	ErrCodeNotRegistered  = 1002
	ErrCodeInvalidHello   = 1003
	ErrCodeInvalidSubmit  = 1004
	ErrCodeDuplicateJob   = 1005
	ErrCodeInvalidCancel  = 1006
	ErrCodeVersion        = 1007
)

// Message is a single decoded frame
type Message struct {
	Type    byte
	Payload []byte
}

// MessageName returns a readable name for logging
func MessageName(msgType byte) string {
	switch msgType {
	case MsgClientHello:
		return "ClientHello"
	case MsgExecutorHello:
		return "ExecutorHello"
	case MsgSubmitJob:
		return "SubmitJob"
	case MsgCancelJob:
		return "CancelJob"
	case MsgJobResult:
		return "JobResult"
	case MsgJobFailure:
		return "JobFailure"
	case MsgJobStarted:
		return "JobStarted"
	case MsgJobCancelled:
		return "JobCancelled"
	case MsgError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Package protocol implements the Klipper-compatible message encoding used
// between the host and the stepcore kernel: VLQ integers, typed message
// formats and the framed, CRC-protected transport.
package protocol

// Version of the wire layer reported in the data dictionary
const Version = "stepcore-0.2.0"

// Protocol constants
const (
	MessageMax     = 64 // Largest frame accepted or produced
	MessageMin     = 5  // Header + trailer
	MessageHeader  = 2  // Length byte + sequence byte
	MessageTrailer = 3  // CRC16 + sync byte
	MessagePayload = MessageMax - MessageMin

	MessageSeqMask = 0x0F
	MessageDest    = 0x10
	MessageSync    = 0x7E

	// OutputMax bounds the pending output of one main-loop pass
	OutputMax = 512
)

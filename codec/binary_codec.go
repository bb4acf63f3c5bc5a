package codec

import (
	"encoding/binary"
	"errors"
	"fmt"

	"balance-rpc/message"
)

type BinaryCodec struct{}

// Layout: each variable-length field is length-prefixed. Metadata is a
// uint16 entry count followed by length-prefixed key/value pairs in
// unspecified order.
//
//	[2 method len][method][4 payload len][payload][2 error len][error]
//	[2 meta count]([2 key len][key][2 val len][val])*
func (c *BinaryCodec) Encode(v any) ([]byte, error) {
	// v must be *RPCMessage
	msg, ok := v.(*message.RPCMessage)
	if !ok {
		return nil, errors.New("BinaryCodec: v must be *RPCMessage")
	}
	// Calculate the total length of the message
	total := 2 + len(msg.ServiceMethod) + 4 + len(msg.Payload) + 2 + len(msg.Error) + 2
	for k, val := range msg.Metadata {
		total += 2 + len(k) + 2 + len(val)
	}
	buf := make([]byte, total)

	offset := 0
	// ServiceMethod length -- 2 bytes
	binary.BigEndian.PutUint16(buf[offset:offset+2], uint16(len(msg.ServiceMethod)))
	offset += 2

	// ServiceMethod -- n bytes
	copy(buf[offset:offset+len(msg.ServiceMethod)], []byte(msg.ServiceMethod))
	offset += len(msg.ServiceMethod)

	// Payload length -- 4 bytes
	binary.BigEndian.PutUint32(buf[offset:offset+4], uint32(len(msg.Payload)))
	offset += 4

	// Payload -- n bytes
	copy(buf[offset:offset+len(msg.Payload)], msg.Payload)
	offset += len(msg.Payload)

	// Error length -- 2 bytes
	binary.BigEndian.PutUint16(buf[offset:offset+2], uint16(len(msg.Error)))
	offset += 2

	// Error -- n bytes
	copy(buf[offset:offset+len(msg.Error)], []byte(msg.Error))
	offset += len(msg.Error)

	// Metadata entry count -- 2 bytes
	binary.BigEndian.PutUint16(buf[offset:offset+2], uint16(len(msg.Metadata)))
	offset += 2

	// Metadata entries -- length-prefixed key/value pairs
	for k, val := range msg.Metadata {
		binary.BigEndian.PutUint16(buf[offset:offset+2], uint16(len(k)))
		offset += 2
		copy(buf[offset:offset+len(k)], []byte(k))
		offset += len(k)
		binary.BigEndian.PutUint16(buf[offset:offset+2], uint16(len(val)))
		offset += 2
		copy(buf[offset:offset+len(val)], []byte(val))
		offset += len(val)
	}
	return buf, nil
}

func (c *BinaryCodec) Decode(data []byte, v any) error {
	// v must be *RPCMessage
	msg, ok := v.(*message.RPCMessage)
	if !ok {
		return errors.New("BinaryCodec: v must be *RPCMessage")
	}

	offset := 0

	// Read ServiceMethod
	strLen := binary.BigEndian.Uint16(data[offset : offset+2])
	offset += 2
	msg.ServiceMethod = string(data[offset : offset+int(strLen)])
	offset += int(strLen)

	// Read Payload
	payloadLen := binary.BigEndian.Uint32(data[offset : offset+4])
	offset += 4
	msg.Payload = make([]byte, payloadLen)
	copy(msg.Payload, data[offset:offset+int(payloadLen)])
	offset += int(payloadLen)

	// Read Error
	errLen := binary.BigEndian.Uint16(data[offset : offset+2])
	offset += 2
	msg.Error = string(data[offset : offset+int(errLen)])
	offset += int(errLen)

	// Older peers stop after the error field — treat a missing metadata
	// section as empty rather than failing the whole message
	if offset == len(data) {
		msg.Metadata = nil
		return nil
	}
	if offset+2 > len(data) {
		return fmt.Errorf("BinaryCodec: truncated metadata section at offset %d", offset)
	}
	count := int(binary.BigEndian.Uint16(data[offset : offset+2]))
	offset += 2

	if count == 0 {
		msg.Metadata = nil
		return nil
	}
	msg.Metadata = make(map[string]string, count)
	for i := 0; i < count; i++ {
		if offset+2 > len(data) {
			return fmt.Errorf("BinaryCodec: truncated metadata key %d", i)
		}
		kLen := int(binary.BigEndian.Uint16(data[offset : offset+2]))
		offset += 2
		if offset+kLen > len(data) {
			return fmt.Errorf("BinaryCodec: truncated metadata key %d", i)
		}
		k := string(data[offset : offset+kLen])
		offset += kLen

		if offset+2 > len(data) {
			return fmt.Errorf("BinaryCodec: truncated metadata value for %q", k)
		}
		vLen := int(binary.BigEndian.Uint16(data[offset : offset+2]))
		offset += 2
		if offset+vLen > len(data) {
			return fmt.Errorf("BinaryCodec: truncated metadata value for %q", k)
		}
		msg.Metadata[k] = string(data[offset : offset+vLen])
		offset += vLen
	}

	return nil
}

func (c *BinaryCodec) Type() CodecType {
	return CodecTypeBinary
}

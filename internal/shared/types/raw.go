package types

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// RawFrameMarker is the first byte of every binary raw-push frame.
const RawFrameMarker byte = 0xB1

const rawHeaderSize = 3

var (
	ErrRawFrameTooShort = errors.New("raw frame too short")
	ErrRawFrameMarker   = errors.New("raw frame has wrong marker")
	ErrRawNameTooLong   = errors.New("raw function name too long")
)

// EncodeRaw builds a binary frame: marker, big-endian uint16 name length,
// name, payload.
func EncodeRaw(function string, payload []byte) ([]byte, error) {
	if len(function) > math.MaxUint16 {
		return nil, fmt.Errorf("%w: %d bytes", ErrRawNameTooLong, len(function))
	}
	frame := make([]byte, rawHeaderSize+len(function)+len(payload))
	frame[0] = RawFrameMarker
	binary.BigEndian.PutUint16(frame[1:rawHeaderSize], uint16(len(function)))
	n := copy(frame[rawHeaderSize:], function)
	copy(frame[rawHeaderSize+n:], payload)
	return frame, nil
}

// DecodeRaw splits a binary frame produced by EncodeRaw. The payload aliases
// the frame.
func DecodeRaw(frame []byte) (string, []byte, error) {
	if len(frame) < rawHeaderSize {
		return "", nil, ErrRawFrameTooShort
	}
	if frame[0] != RawFrameMarker {
		return "", nil, fmt.Errorf("%w: 0x%02x", ErrRawFrameMarker, frame[0])
	}
	nameLen := int(binary.BigEndian.Uint16(frame[1:rawHeaderSize]))
	if len(frame) < rawHeaderSize+nameLen {
		return "", nil, ErrRawFrameTooShort
	}
	name := string(frame[rawHeaderSize : rawHeaderSize+nameLen])
	return name, frame[rawHeaderSize+nameLen:], nil
}

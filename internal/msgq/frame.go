package msgq

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/kestreldns/kestrel/internal/data"
)

// Bus frame layout:
//
//	4 bytes  total length, big-endian (header length field + header + payload)
//	2 bytes  header length, big-endian
//	H bytes  routing header, a wire-format map Element
//	P bytes  payload, opaque to the broker
//
// The payload usually carries a wire-format Element too, but the broker
// never looks at it.

const (
	frameLenSize   = 4
	headerLenSize  = 2
	maxFrameLength = 1 << 20
)

type frame struct {
	headerBytes []byte
	header      *data.Element
	payload     []byte
}

func readFrame(r io.Reader) (*frame, error) {
	var lenBuf [frameLenSize]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	total := int(binary.BigEndian.Uint32(lenBuf[:]))
	if total < headerLenSize {
		return nil, fmt.Errorf("frame length %d too small", total)
	}
	if total > maxFrameLength {
		return nil, fmt.Errorf("frame length %d exceeds limit", total)
	}

	body := make([]byte, total)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}

	headerLen := int(binary.BigEndian.Uint16(body[:headerLenSize]))
	if headerLenSize+headerLen > total {
		return nil, fmt.Errorf("header length %d exceeds frame length %d", headerLen, total)
	}
	headerBytes := body[headerLenSize : headerLenSize+headerLen]

	header, err := data.FromWire(headerBytes)
	if err != nil {
		return nil, fmt.Errorf("routing header: %w", err)
	}
	if header.GetType() != data.Map {
		return nil, fmt.Errorf("routing header is a %s, not a map", header.GetType())
	}

	return &frame{
		headerBytes: headerBytes,
		header:      header,
		payload:     body[headerLenSize+headerLen:],
	}, nil
}

func writeFrame(w io.Writer, headerBytes, payload []byte) error {
	total := headerLenSize + len(headerBytes) + len(payload)
	if total > maxFrameLength {
		return fmt.Errorf("frame length %d exceeds limit", total)
	}
	buf := make([]byte, frameLenSize+total)
	binary.BigEndian.PutUint32(buf, uint32(total))
	binary.BigEndian.PutUint16(buf[frameLenSize:], uint16(len(headerBytes)))
	copy(buf[frameLenSize+headerLenSize:], headerBytes)
	copy(buf[frameLenSize+headerLenSize+len(headerBytes):], payload)
	_, err := w.Write(buf)
	return err
}

func writeHeaderFrame(w io.Writer, header *data.Element, payload []byte) error {
	headerBytes, err := header.ToWire(false)
	if err != nil {
		return fmt.Errorf("encoding routing header: %w", err)
	}
	return writeFrame(w, headerBytes, payload)
}

// Package encoding implements the canonical byte encoding used as the hash
// pre-image for blocks and transactions.
//
// Every value has exactly one representation:
//
//	int32            4 bytes little endian
//	int64, uint64    8 bytes little endian
//	string, []byte   uint64 length, then the raw bytes
//	sequences        uint64 element count, then each element
//
// Composite values implement Encodable and write their fields in a fixed
// order. Maps are never encoded.
package encoding

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// ErrEncoding is the root of every canonical encoding failure.
var ErrEncoding = errors.New("canonical encoding failed")

// littleEndian is a convenience variable since binary.LittleEndian is
// quite long.
var littleEndian = binary.LittleEndian

// Encodable is implemented by composite values that know their own field
// order.
type Encodable interface {
	EncodeCanonical(w io.Writer) error
}

// WriteElement writes the canonical representation of element to w.
func WriteElement(w io.Writer, element interface{}) error {
	switch e := element.(type) {
	case int32:
		var buf [4]byte
		littleEndian.PutUint32(buf[:], uint32(e))
		return write(w, buf[:])

	case int64:
		var buf [8]byte
		littleEndian.PutUint64(buf[:], uint64(e))
		return write(w, buf[:])

	case uint64:
		var buf [8]byte
		littleEndian.PutUint64(buf[:], e)
		return write(w, buf[:])

	case string:
		if err := WriteElement(w, uint64(len(e))); err != nil {
			return err
		}
		return write(w, []byte(e))

	case []byte:
		if err := WriteElement(w, uint64(len(e))); err != nil {
			return err
		}
		return write(w, e)

	case Encodable:
		return e.EncodeCanonical(w)
	}

	return errors.Wrapf(ErrEncoding, "no encoding for type %T", element)
}

// WriteElements writes multiple items to w. It is equivalent to multiple
// calls to WriteElement.
func WriteElements(w io.Writer, elements ...interface{}) error {
	for _, element := range elements {
		if err := WriteElement(w, element); err != nil {
			return err
		}
	}
	return nil
}

// WriteSequenceLength writes the element count that prefixes a sequence.
func WriteSequenceLength(w io.Writer, n int) error {
	return WriteElement(w, uint64(n))
}

// Marshal returns the canonical encoding of the given elements, in order.
func Marshal(elements ...interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteElements(&buf, elements...); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func write(w io.Writer, p []byte) error {
	if _, err := w.Write(p); err != nil {
		return errors.Wrapf(ErrEncoding, "write failed: %v", err)
	}
	return nil
}

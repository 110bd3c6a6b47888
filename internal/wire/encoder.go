package wire

import "encoding/binary"

// encoder accumulates the bytes of one outgoing frame.
type encoder struct {
	buf []byte
}

func newEncoder() *encoder {
	return &encoder{buf: make([]byte, 0, 256)}
}

func (e *encoder) u8(b byte) {
	e.buf = append(e.buf, b)
}

func (e *encoder) u64(v uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	e.buf = append(e.buf, tmp[:]...)
}

// rawField writes a length-prefixed field without encryption.
func (e *encoder) rawField(data []byte) {
	e.u64(uint64(len(data)))
	e.buf = append(e.buf, data...)
}

// field writes a length-prefixed field, encrypting it first when cipher is
// non-nil.
func (e *encoder) field(cipher Cipher, data []byte) error {
	if cipher == nil {
		e.rawField(data)
		return nil
	}
	ciphertext, err := cipher.Encrypt(data)
	if err != nil {
		return err
	}
	e.rawField(ciphertext)
	return nil
}

// optionalField writes an absent optional as a zero-length field (never
// encrypted), or delegates to field when present.
func (e *encoder) optionalField(cipher Cipher, data []byte, present bool) error {
	if !present {
		e.u64(0)
		return nil
	}
	return e.field(cipher, data)
}

func (e *encoder) bytes() []byte {
	return e.buf
}

package wire

import "encoding/binary"

// decoder reads fields out of a byte slice that may not yet hold a full
// frame. Every read method returns ErrIncomplete, never a partial result,
// when the slice runs out — the caller (ParseFrame) discards the whole
// attempt and the connection keeps buffering.
type decoder struct {
	buf []byte
	pos int
}

func newDecoder(buf []byte) *decoder {
	return &decoder{buf: buf}
}

func (d *decoder) u8() (byte, error) {
	if d.pos+1 > len(d.buf) {
		return 0, ErrIncomplete
	}
	b := d.buf[d.pos]
	d.pos++
	return b, nil
}

func (d *decoder) u64() (uint64, error) {
	if d.pos+8 > len(d.buf) {
		return 0, ErrIncomplete
	}
	v := binary.BigEndian.Uint64(d.buf[d.pos : d.pos+8])
	d.pos += 8
	return v, nil
}

// rawField reads a length-prefixed field without touching a cipher.
func (d *decoder) rawField() ([]byte, error) {
	n, err := d.u64()
	if err != nil {
		return nil, err
	}
	if d.pos+int(n) > len(d.buf) {
		return nil, ErrIncomplete
	}
	data := d.buf[d.pos : d.pos+int(n)]
	d.pos += int(n)
	return data, nil
}

// field reads a length-prefixed field and decrypts it when cipher is
// non-nil, per spec §4.1's encryption coupling.
func (d *decoder) field(cipher Cipher) ([]byte, error) {
	raw, err := d.rawField()
	if err != nil {
		return nil, err
	}
	if cipher == nil {
		return raw, nil
	}
	plain, err := cipher.Decrypt(raw)
	if err != nil {
		return nil, ErrAuth
	}
	return plain, nil
}

// optionalField reads a length-prefixed field that may be absent (length 0
// means absent, and is never passed through the cipher — mirrors the
// origin_device special case in spec §4.1).
func (d *decoder) optionalField(cipher Cipher) ([]byte, bool, error) {
	n, err := d.u64()
	if err != nil {
		return nil, false, err
	}
	if n == 0 {
		return nil, false, nil
	}
	if d.pos+int(n) > len(d.buf) {
		return nil, false, ErrIncomplete
	}
	raw := d.buf[d.pos : d.pos+int(n)]
	d.pos += int(n)
	if cipher == nil {
		return raw, true, nil
	}
	plain, err := cipher.Decrypt(raw)
	if err != nil {
		return nil, false, ErrAuth
	}
	return plain, true, nil
}

func (d *decoder) utf8(raw []byte) (string, error) {
	if !isValidUTF8(raw) {
		return "", ErrProtocol
	}
	return string(raw), nil
}

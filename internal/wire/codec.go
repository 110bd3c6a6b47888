package wire

// ParseFrame attempts to parse one frame from the front of buf. If buf does
// not yet hold a complete frame it returns ErrIncomplete and the caller must
// read more bytes and retry with the enlarged buffer — no bytes are deemed
// consumed in that case. On success it returns the frame and the number of
// bytes consumed so the caller can advance its read buffer.
//
// cipher is nil when the connection has no shared password. REGISTER,
// ACCEPT and ERROR frames are never passed through cipher, matching
// spec §4.1: they carry (or precede) the handshake itself.
func ParseFrame(buf []byte, cipher Cipher) (*Frame, int, error) {
	d := newDecoder(buf)

	flagByte, err := d.u8()
	if err != nil {
		return nil, 0, err
	}
	flag := Flag(flagByte)

	switch flag {
	case FlagRegister:
		obj, err := d.field(nil)
		if err != nil {
			return nil, 0, err
		}
		r, err := decodeRegisterObject(obj)
		if err != nil {
			return nil, 0, err
		}
		return &Frame{Flag: flag, Register: r}, d.pos, nil

	case FlagAccept:
		obj, err := d.field(nil)
		if err != nil {
			return nil, 0, err
		}
		a, err := decodeAcceptObject(obj)
		if err != nil {
			return nil, 0, err
		}
		return &Frame{Flag: flag, Accept: a}, d.pos, nil

	case FlagPull, FlagNone, FlagPing, FlagOK:
		return &Frame{Flag: flag}, d.pos, nil

	case FlagError:
		raw, err := d.field(nil)
		if err != nil {
			return nil, 0, err
		}
		msg, err := d.utf8(raw)
		if err != nil {
			return nil, 0, err
		}
		return &Frame{Flag: flag, ErrorMessage: msg}, d.pos, nil

	case FlagPushText, FlagPushImage, FlagPushFile:
		data, err := parseDataFields(d, flag, cipher)
		if err != nil {
			return nil, 0, err
		}
		return &Frame{Flag: flag, Data: data}, d.pos, nil

	default:
		return nil, 0, ErrProtocol
	}
}

func parseDataFields(d *decoder, flag Flag, cipher Cipher) (*DataFrame, error) {
	originRaw, present, err := d.optionalField(cipher)
	if err != nil {
		return nil, err
	}
	var origin *string
	if present {
		s, err := d.utf8(originRaw)
		if err != nil {
			return nil, err
		}
		origin = &s
	}

	digestRaw, err := d.field(cipher)
	if err != nil {
		return nil, err
	}
	digest, err := d.utf8(digestRaw)
	if err != nil {
		return nil, err
	}

	data := &DataFrame{OriginDevice: origin, Digest: digest}

	switch flag {
	case FlagPushText:
		data.Kind = PayloadText
		textRaw, err := d.field(cipher)
		if err != nil {
			return nil, err
		}
		text, err := d.utf8(textRaw)
		if err != nil {
			return nil, err
		}
		data.Text = text

	case FlagPushImage:
		data.Kind = PayloadImage
		width, err := d.u64()
		if err != nil {
			return nil, err
		}
		height, err := d.u64()
		if err != nil {
			return nil, err
		}
		raw, err := d.field(cipher)
		if err != nil {
			return nil, err
		}
		data.Image = &ImagePayload{Width: width, Height: height, Data: cloneBytes(raw)}

	case FlagPushFile:
		data.Kind = PayloadFile
		nameRaw, err := d.field(cipher)
		if err != nil {
			return nil, err
		}
		name, err := d.utf8(nameRaw)
		if err != nil {
			return nil, err
		}
		mode, err := d.u64()
		if err != nil {
			return nil, err
		}
		raw, err := d.field(cipher)
		if err != nil {
			return nil, err
		}
		data.File = &FilePayload{Name: name, Mode: mode, Data: cloneBytes(raw)}
	}

	return data, nil
}

// EncodeFrame serializes f into the wire format described in spec §4.1/§6.1.
func EncodeFrame(f *Frame, cipher Cipher) ([]byte, error) {
	e := newEncoder()
	e.u8(byte(f.Flag))

	switch f.Flag {
	case FlagRegister:
		if err := e.field(nil, encodeRegisterObject(f.Register)); err != nil {
			return nil, err
		}

	case FlagAccept:
		if err := e.field(nil, encodeAcceptObject(f.Accept)); err != nil {
			return nil, err
		}

	case FlagPull, FlagNone, FlagPing, FlagOK:
		// no fields

	case FlagError:
		if err := e.field(nil, []byte(f.ErrorMessage)); err != nil {
			return nil, err
		}

	case FlagPushText, FlagPushImage, FlagPushFile:
		if err := encodeDataFields(e, f.Data, cipher); err != nil {
			return nil, err
		}

	default:
		return nil, ErrProtocol
	}

	return e.bytes(), nil
}

func encodeDataFields(e *encoder, d *DataFrame, cipher Cipher) error {
	var originBytes []byte
	if d.OriginDevice != nil {
		originBytes = []byte(*d.OriginDevice)
	}
	if err := e.optionalField(cipher, originBytes, d.OriginDevice != nil); err != nil {
		return err
	}
	if err := e.field(cipher, []byte(d.Digest)); err != nil {
		return err
	}

	switch d.Kind {
	case PayloadText:
		return e.field(cipher, []byte(d.Text))

	case PayloadImage:
		e.u64(d.Image.Width)
		e.u64(d.Image.Height)
		return e.field(cipher, d.Image.Data)

	case PayloadFile:
		if err := e.field(cipher, []byte(d.File.Name)); err != nil {
			return err
		}
		e.u64(d.File.Mode)
		return e.field(cipher, d.File.Data)
	}
	return ErrProtocol
}

// --- REGISTER/ACCEPT object encoding ---
//
// These frames carry "a single serialized object field" per spec §4.1. The
// object bytes are our own compact binary encoding (there is no bincode
// wire-compatibility requirement here, both ends are this Go implementation)
// built with the same length-prefixed primitives as the rest of the codec.

func encodeRegisterObject(r *RegisterFrame) []byte {
	e := newEncoder()
	if r.Publish != nil {
		e.u8(1)
		e.rawField([]byte(*r.Publish))
	} else {
		e.u8(0)
	}
	e.u64(uint64(len(r.Subs)))
	for _, s := range r.Subs {
		e.rawField([]byte(s))
	}
	return e.bytes()
}

func decodeRegisterObject(obj []byte) (*RegisterFrame, error) {
	d := newDecoder(obj)
	present, err := d.u8()
	if err != nil {
		return nil, ErrProtocol
	}
	r := &RegisterFrame{}
	if present == 1 {
		raw, err := d.rawField()
		if err != nil {
			return nil, ErrProtocol
		}
		s, err := d.utf8(raw)
		if err != nil {
			return nil, err
		}
		r.Publish = &s
	}
	count, err := d.u64()
	if err != nil {
		return nil, ErrProtocol
	}
	r.Subs = make([]string, 0, count)
	for i := uint64(0); i < count; i++ {
		raw, err := d.rawField()
		if err != nil {
			return nil, ErrProtocol
		}
		s, err := d.utf8(raw)
		if err != nil {
			return nil, err
		}
		r.Subs = append(r.Subs, s)
	}
	return r, nil
}

func encodeAcceptObject(a *AcceptFrame) []byte {
	e := newEncoder()
	e.u64(a.Version)
	if a.Auth != nil {
		e.u8(1)
		e.rawField(a.Auth.Nonce)
		e.rawField(a.Auth.Salt)
		e.rawField(a.Auth.Check)
		e.rawField(a.Auth.CheckPlain)
	} else {
		e.u8(0)
	}
	return e.bytes()
}

func decodeAcceptObject(obj []byte) (*AcceptFrame, error) {
	d := newDecoder(obj)
	version, err := d.u64()
	if err != nil {
		return nil, ErrProtocol
	}
	a := &AcceptFrame{Version: version}
	present, err := d.u8()
	if err != nil {
		return nil, ErrProtocol
	}
	if present == 1 {
		nonce, err := d.rawField()
		if err != nil {
			return nil, ErrProtocol
		}
		salt, err := d.rawField()
		if err != nil {
			return nil, ErrProtocol
		}
		check, err := d.rawField()
		if err != nil {
			return nil, ErrProtocol
		}
		checkPlain, err := d.rawField()
		if err != nil {
			return nil, ErrProtocol
		}
		a.Auth = &AuthChallenge{
			Nonce:      append([]byte(nil), nonce...),
			Salt:       append([]byte(nil), salt...),
			Check:      append([]byte(nil), check...),
			CheckPlain: append([]byte(nil), checkPlain...),
		}
	}
	return a, nil
}

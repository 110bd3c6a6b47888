package wire

import (
	"testing"

	"github.com/fioncat/csync-go/internal/digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, f *Frame, cipher Cipher) *Frame {
	t.Helper()
	encoded, err := EncodeFrame(f, cipher)
	require.NoError(t, err)

	got, n, err := ParseFrame(encoded, cipher)
	require.NoError(t, err)
	assert.Equal(t, len(encoded), n)
	return got
}

func TestPushTextRoundTrip(t *testing.T) {
	origin := "laptop"
	text := "hello"
	d := &DataFrame{
		Kind:         PayloadText,
		OriginDevice: &origin,
		Digest:       digest.Sum([]byte(text)),
		Text:         text,
	}
	got := roundTrip(t, NewPush(d), nil)
	require.NotNil(t, got.Data)
	assert.Equal(t, FlagPushText, got.Flag)
	assert.Equal(t, origin, *got.Data.OriginDevice)
	assert.Equal(t, d.Digest, got.Data.Digest)
	assert.Equal(t, text, got.Data.Text)
	assert.True(t, digest.Verify(got.Data.Digest, []byte(got.Data.Text)))
}

func TestPushTextNoOriginDevice(t *testing.T) {
	d := &DataFrame{
		Kind:   PayloadText,
		Digest: digest.Sum([]byte("world")),
		Text:   "world",
	}
	got := roundTrip(t, NewPush(d), nil)
	assert.Nil(t, got.Data.OriginDevice)
}

func TestPushImageRoundTrip(t *testing.T) {
	raw := make([]byte, 200)
	for i := range raw {
		raw[i] = byte(i)
	}
	d := &DataFrame{
		Kind:   PayloadImage,
		Digest: digest.Sum(raw),
		Image:  &ImagePayload{Width: 10, Height: 10, Data: raw},
	}
	got := roundTrip(t, NewPush(d), nil)
	require.NotNil(t, got.Data.Image)
	assert.Equal(t, uint64(10), got.Data.Image.Width)
	assert.Equal(t, uint64(10), got.Data.Image.Height)
	assert.Equal(t, raw, got.Data.Image.Data)
	assert.Equal(t, d.Digest, got.Data.Digest)
}

func TestPushFileRoundTrip(t *testing.T) {
	raw := []byte("#!/bin/sh\necho hi\n")
	d := &DataFrame{
		Kind:   PayloadFile,
		Digest: digest.Sum(raw),
		File:   &FilePayload{Name: "run.sh", Mode: 0o755, Data: raw},
	}
	got := roundTrip(t, NewPush(d), nil)
	require.NotNil(t, got.Data.File)
	assert.Equal(t, "run.sh", got.Data.File.Name)
	assert.Equal(t, uint64(0o755), got.Data.File.Mode)
	assert.Equal(t, raw, got.Data.File.Data)
}

func TestEmptyFieldsLegal(t *testing.T) {
	d := &DataFrame{Kind: PayloadText, Digest: digest.Sum(nil), Text: ""}
	got := roundTrip(t, NewPush(d), nil)
	assert.Equal(t, "", got.Data.Text)
}

func TestFieldlessFrames(t *testing.T) {
	for _, f := range []*Frame{NewPull(), NewNone(), NewPing(), NewOK()} {
		got := roundTrip(t, f, nil)
		assert.Equal(t, f.Flag, got.Flag)
	}
}

func TestErrorFrame(t *testing.T) {
	got := roundTrip(t, NewError("boom"), nil)
	assert.Equal(t, FlagError, got.Flag)
	assert.Equal(t, "boom", got.ErrorMessage)
}

func TestRegisterRoundTrip(t *testing.T) {
	publish := "laptop"
	got := roundTrip(t, NewRegister(&RegisterFrame{Publish: &publish}), nil)
	require.NotNil(t, got.Register)
	assert.Equal(t, publish, *got.Register.Publish)
	assert.Empty(t, got.Register.Subs)

	got2 := roundTrip(t, NewRegister(&RegisterFrame{Subs: []string{"a", "b"}}), nil)
	assert.Nil(t, got2.Register.Publish)
	assert.Equal(t, []string{"a", "b"}, got2.Register.Subs)
}

func TestAcceptRoundTrip(t *testing.T) {
	got := roundTrip(t, NewAccept(&AcceptFrame{Version: ProtocolVersion}), nil)
	assert.Equal(t, uint64(ProtocolVersion), got.Accept.Version)
	assert.Nil(t, got.Accept.Auth)

	withAuth := &AcceptFrame{
		Version: ProtocolVersion,
		Auth: &AuthChallenge{
			Nonce:      []byte("nonce12345678"),
			Salt:       []byte("salt0123456789012345678901234"),
			Check:      []byte("checkdata"),
			CheckPlain: []byte("plain"),
		},
	}
	got2 := roundTrip(t, NewAccept(withAuth), nil)
	require.NotNil(t, got2.Accept.Auth)
	assert.Equal(t, withAuth.Auth.Nonce, got2.Accept.Auth.Nonce)
	assert.Equal(t, withAuth.Auth.CheckPlain, got2.Accept.Auth.CheckPlain)
}

func TestIncompleteDoesNotConsume(t *testing.T) {
	d := &DataFrame{Kind: PayloadText, Digest: digest.Sum([]byte("hi")), Text: "hi"}
	full, err := EncodeFrame(NewPush(d), nil)
	require.NoError(t, err)

	for cut := 0; cut < len(full); cut++ {
		_, _, err := ParseFrame(full[:cut], nil)
		assert.ErrorIs(t, err, ErrIncomplete, "cut at %d", cut)
	}
}

func TestMultipleFramesInOneBuffer(t *testing.T) {
	a, _ := EncodeFrame(NewPing(), nil)
	b, _ := EncodeFrame(NewOK(), nil)
	c, _ := EncodeFrame(NewPull(), nil)

	buf := append(append(append([]byte{}, a...), b...), c...)

	f1, n1, err := ParseFrame(buf, nil)
	require.NoError(t, err)
	assert.Equal(t, FlagPing, f1.Flag)
	buf = buf[n1:]

	f2, n2, err := ParseFrame(buf, nil)
	require.NoError(t, err)
	assert.Equal(t, FlagOK, f2.Flag)
	buf = buf[n2:]

	f3, n3, err := ParseFrame(buf, nil)
	require.NoError(t, err)
	assert.Equal(t, FlagPull, f3.Flag)
	assert.Equal(t, len(buf), n3)
}

func TestUnknownFlagIsProtocolError(t *testing.T) {
	_, _, err := ParseFrame([]byte{0xAB}, nil)
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestNonUTF8TextIsProtocolError(t *testing.T) {
	d := &DataFrame{Kind: PayloadText, Digest: digest.Sum([]byte("hi")), Text: "hi"}
	buf, err := EncodeFrame(NewPush(d), nil)
	require.NoError(t, err)

	// corrupt the text field's bytes to invalid UTF-8 without changing
	// the declared length.
	buf[len(buf)-1] = 0xFF
	_, _, err = ParseFrame(buf, nil)
	assert.ErrorIs(t, err, ErrProtocol)
}

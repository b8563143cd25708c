package util

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00}

func TestDecodeBase64MaybeDataURL(t *testing.T) {
	raw := []byte("hello image")
	b64 := base64.StdEncoding.EncodeToString(raw)

	got, mime, err := DecodeBase64MaybeDataURL(b64)
	require.NoError(t, err)
	assert.Equal(t, raw, got)
	assert.Empty(t, mime)

	got, mime, err = DecodeBase64MaybeDataURL(MakeDataURL("image/png", b64))
	require.NoError(t, err)
	assert.Equal(t, raw, got)
	assert.Equal(t, "image/png", mime)

	got, _, err = DecodeBase64MaybeDataURL(base64.RawURLEncoding.EncodeToString(raw))
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	_, _, err = DecodeBase64MaybeDataURL("%%% not base64 %%%")
	assert.Error(t, err)
}

func TestPickMIME(t *testing.T) {
	assert.Equal(t, "image/webp", PickMIME("IMAGE/WEBP", "image/png", pngHeader))
	assert.Equal(t, "image/png", PickMIME("", "image/png", nil))
	assert.Equal(t, "image/png", PickMIME("", "", pngHeader))
	assert.Equal(t, "image/jpeg", PickMIME("", "", []byte("plain text")))
}

func TestStripDataURL(t *testing.T) {
	assert.Equal(t, "QUJD", StripDataURL("data:image/jpeg;base64,QUJD"))
	assert.Equal(t, "QUJD", StripDataURL("  QUJD "))
}

func TestStripCodeFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, StripCodeFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, StripCodeFences(`{"a":1}`))
}

func TestTruncateAndSplitList(t *testing.T) {
	assert.Equal(t, "абв…", Truncate("абвгд", 3))
	assert.Equal(t, "abc", Truncate("abc", 3))
	assert.Equal(t, []string{"a", "b", "c"}, SplitList("a, b,,c "))
	assert.Nil(t, SplitList(" , "))
}

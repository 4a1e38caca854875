package ticket

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, uri, prefix string) []byte {
	t.Helper()
	require.True(t, strings.HasPrefix(uri, prefix), uri)
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, prefix))
	require.NoError(t, err)
	return raw
}

func TestRenderProducesPNGs(t *testing.T) {
	tk := Default.Render("https://shop.example/order/12345678", "12345678")
	assert.Equal(t, "12345678", tk.Code)

	for _, uri := range []string{tk.QRImage, tk.BarcodeImg} {
		raw := decode(t, uri, "data:image/png;base64,")
		img, err := png.Decode(bytes.NewReader(raw))
		require.NoError(t, err)
		assert.Positive(t, img.Bounds().Dx())
	}
}

func TestRenderFallsBackToPlaceholder(t *testing.T) {
	broken := func(string) (image.Image, error) { return nil, errors.New("no encoder") }
	r := Renderer{QR: broken, Barcode: broken}

	tk := r.Render("https://shop.example/order/<1>", "00000042")
	qr := string(decode(t, tk.QRImage, "data:image/svg+xml;base64,"))
	assert.Contains(t, qr, "QR: https://shop.example/order/&lt;1&gt;")
	bc := string(decode(t, tk.BarcodeImg, "data:image/svg+xml;base64,"))
	assert.Contains(t, bc, "ID: 00000042")
}

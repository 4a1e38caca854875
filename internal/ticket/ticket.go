// Package ticket renders the printable order ticket images: a QR code of the
// tracking URL and a Code-128 barcode of the public code, both as data URIs.
package ticket

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html"
	"image"
	"image/png"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/code128"
	"github.com/boombuler/barcode/qr"
)

// Encoder 把文本编码成图片。
type Encoder func(text string) (image.Image, error)

// 输出尺寸（像素）。
const (
	qrSize        = 240
	barcodeWidth  = 320
	barcodeHeight = 80
)

// EncodeQR M 级纠错的二维码。
func EncodeQR(text string) (image.Image, error) {
	bc, err := qr.Encode(text, qr.M, qr.Auto)
	if err != nil {
		return nil, err
	}
	return barcode.Scale(bc, qrSize, qrSize)
}

// EncodeCode128 一维条码。
func EncodeCode128(text string) (image.Image, error) {
	bc, err := code128.Encode(text)
	if err != nil {
		return nil, err
	}
	return barcode.Scale(bc, barcodeWidth, barcodeHeight)
}

// Ticket 两张图片都是可直接嵌入的 data URI，失败时为 SVG 占位图，调用方无需区分。
type Ticket struct {
	Code       string `json:"code"`
	URL        string `json:"url"`
	QRImage    string `json:"qr_img"`
	BarcodeImg string `json:"barcode_img"`
}

// Renderer 编码器可替换，默认使用 boombuler/barcode。
type Renderer struct {
	QR      Encoder
	Barcode Encoder
}

var Default = Renderer{QR: EncodeQR, Barcode: EncodeCode128}

// Render 生成订单票据图片，任何编码失败都退回占位图，不返回错误。
func (r Renderer) Render(trackingURL, publicCode string) Ticket {
	return Ticket{
		Code:       publicCode,
		URL:        trackingURL,
		QRImage:    r.dataURI(r.QR, trackingURL, qrPlaceholder),
		BarcodeImg: r.dataURI(r.Barcode, publicCode, barcodePlaceholder),
	}
}

func (r Renderer) dataURI(enc Encoder, text string, fallback func(string) string) string {
	if enc == nil || text == "" {
		return fallback(text)
	}
	img, err := enc(text)
	if err != nil {
		return fallback(text)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fallback(text)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func qrPlaceholder(text string) string {
	return svgURI(fmt.Sprintf(
		"<svg xmlns='http://www.w3.org/2000/svg' width='200' height='200'>"+
			"<rect width='100%%' height='100%%' fill='#eee'/>"+
			"<text x='50%%' y='50%%' dominant-baseline='middle' text-anchor='middle' font-size='12' fill='#444'>QR: %s</text></svg>",
		html.EscapeString(text)))
}

func barcodePlaceholder(text string) string {
	return svgURI(fmt.Sprintf(
		"<svg xmlns='http://www.w3.org/2000/svg' width='280' height='80'>"+
			"<rect width='100%%' height='100%%' fill='#fff' stroke='#000'/>"+
			"<text x='50%%' y='50%%' dominant-baseline='middle' text-anchor='middle' font-size='18' fill='#111'>ID: %s</text></svg>",
		html.EscapeString(text)))
}

func svgURI(svg string) string {
	return "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(svg))
}

package transport

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// DefaultQRSize is the PNG edge length in pixels.
const DefaultQRSize = 512

// RenderQR draws blob as a PNG QR code with medium error correction.
// Payloads beyond QR capacity fail rather than being split across codes.
func RenderQR(blob []byte, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultQRSize
	}
	png, err := qrcode.Encode(string(blob), qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("render qr code (%d bytes): %w", len(blob), err)
	}
	return png, nil
}

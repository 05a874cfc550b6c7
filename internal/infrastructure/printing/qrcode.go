package printing

import (
	"encoding/base64"

	qrcode "github.com/skip2/go-qrcode"
)

const qrImageSize = 256

// QRCodeDataURI encodes the given content as a QR code PNG and returns
// it as a data URI suitable for embedding in an <img> tag. Medium error
// correction survives typical thermal printer artifacts.
func QRCodeDataURI(content string) (string, error) {
	png, err := qrcode.Encode(content, qrcode.Medium, qrImageSize)
	if err != nil {
		return "", NewRenderError(ErrCodeRenderFailed, "failed to encode QR code", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

package alpaca

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ImageBytes header layout (all fields little-endian int32/uint32).
const (
	// imageHeaderSize is the fixed size of the ImageBytes metadata header.
	imageHeaderSize = 44

	// imageMetadataV1 is the only metadata version this client decodes.
	imageMetadataV1 = 1

	// maxImageSize caps image payloads (256 MB covers any current sensor).
	maxImageSize = 256 << 20

	// contentTypeImageBytes is the media type of the binary image format.
	contentTypeImageBytes = "application/imagebytes"
)

// Element types used in the ImageBytes transmission header.
const (
	ElementInt16   int32 = 1
	ElementInt32   int32 = 2
	ElementFloat64 int32 = 3
)

// elementSize returns the byte width of a transmission element type,
// or 0 for types this client does not decode.
func elementSize(t int32) int {
	switch t {
	case ElementInt16:
		return 2
	case ElementInt32:
		return 4
	case ElementFloat64:
		return 8
	default:
		return 0
	}
}

// Image is a decoded captured image: the declared geometry plus the raw
// little-endian pixel buffer.
type Image struct {
	ElementType      int32 `json:"element_type"`
	TransmissionType int32 `json:"transmission_type"`
	Rank             int32 `json:"rank"`
	Dim1             int32 `json:"dim1"`
	Dim2             int32 `json:"dim2"`
	Dim3             int32 `json:"dim3"`

	// Data is the raw pixel buffer, exactly elements*elementSize bytes.
	Data []byte `json:"-"`
}

// Elements returns the number of pixels declared by the dimension fields.
func (img *Image) Elements() int {
	n := int(img.Dim1)
	if img.Rank >= 2 {
		n *= int(img.Dim2)
	}
	if img.Rank >= 3 {
		n *= int(img.Dim3)
	}
	return n
}

// ImageArray fetches and decodes the device's imagearray result using the
// binary ImageBytes encoding.
func (c *Client) ImageArray(ctx context.Context, ref DeviceRef) (*Image, error) {
	const action = "imagearray"

	q := c.withIdentity(nil)
	reqURL := deviceURL(ref, action) + "?" + q.Encode()

	req, cancel, err := c.newRequest(ctx, http.MethodGet, action, reqURL, nil)
	if err != nil {
		return nil, err
	}
	defer cancel()
	req.Header.Set("Accept", contentTypeImageBytes)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransport(action, err)
	}
	defer resp.Body.Close() //nolint:errcheck // Best-effort close on read path

	if resp.StatusCode != http.StatusOK {
		return nil, &CallError{Kind: KindProtocol, Action: action, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxImageSize))
	if err != nil {
		return nil, classifyTransport(action, err)
	}

	// A server that ignores the Accept header answers with the JSON
	// envelope; surface its error detail rather than failing the decode.
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), contentTypeImageBytes) {
		var env response
		if jsonErr := json.Unmarshal(body, &env); jsonErr == nil && env.ErrorNumber != 0 {
			return nil, &CallError{Kind: KindProtocol, Action: action, Number: env.ErrorNumber, Message: env.ErrorMessage}
		}
		return nil, &CallError{Kind: KindProtocol, Action: action, Message: "server does not support imagebytes"}
	}

	return DecodeImageBytes(body)
}

// DecodeImageBytes decodes an ImageBytes payload: a 44-byte little-endian
// header (metadata version, error number, client/server transaction ids,
// data start, image element type, transmission element type, rank, three
// dimensions) followed by the raw pixel buffer.
//
// The declared dimensions are validated against the buffer length before any
// image is returned. A non-zero error number aborts the decode with a
// protocol CallError carrying the server's UTF-8 error message.
func DecodeImageBytes(buf []byte) (*Image, error) {
	if len(buf) < imageHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the %d-byte header", ErrDecode, len(buf), imageHeaderSize)
	}

	le := binary.LittleEndian
	version := int32(le.Uint32(buf[0:4]))
	errorNumber := int32(le.Uint32(buf[4:8]))
	dataStart := int32(le.Uint32(buf[16:20]))
	img := &Image{
		ElementType:      int32(le.Uint32(buf[20:24])),
		TransmissionType: int32(le.Uint32(buf[24:28])),
		Rank:             int32(le.Uint32(buf[28:32])),
		Dim1:             int32(le.Uint32(buf[32:36])),
		Dim2:             int32(le.Uint32(buf[36:40])),
		Dim3:             int32(le.Uint32(buf[40:44])),
	}

	if version != imageMetadataV1 {
		return nil, fmt.Errorf("%w: unsupported metadata version %d", ErrDecode, version)
	}

	// The error payload replaces the pixel data when the capture failed.
	if errorNumber != 0 {
		msg := ""
		if int(dataStart) >= imageHeaderSize && int(dataStart) <= len(buf) {
			msg = string(buf[dataStart:])
		}
		return nil, &CallError{Kind: KindProtocol, Action: "imagearray", Number: errorNumber, Message: msg}
	}

	if int(dataStart) < imageHeaderSize || int(dataStart) > len(buf) {
		return nil, fmt.Errorf("%w: data start %d outside payload of %d bytes", ErrDecode, dataStart, len(buf))
	}
	if img.Rank < 1 || img.Rank > 3 {
		return nil, fmt.Errorf("%w: rank %d not in 1..3", ErrDecode, img.Rank)
	}
	if img.Dim1 <= 0 || (img.Rank >= 2 && img.Dim2 <= 0) || (img.Rank >= 3 && img.Dim3 <= 0) {
		return nil, fmt.Errorf("%w: non-positive dimension (%d, %d, %d)", ErrDecode, img.Dim1, img.Dim2, img.Dim3)
	}

	size := elementSize(img.TransmissionType)
	if size == 0 {
		return nil, fmt.Errorf("%w: unsupported transmission element type %d", ErrDecode, img.TransmissionType)
	}

	// Running product with a cap check after every multiply: each factor
	// fits int32 and the product never exceeds maxImageSize before the
	// next step, so the int64 arithmetic cannot overflow into a value
	// that happens to match the buffer length.
	expected := int64(size) * int64(img.Dim1)
	if img.Rank >= 2 {
		if expected > maxImageSize {
			return nil, fmt.Errorf("%w: declared dimensions exceed the %d byte limit", ErrDecode, int64(maxImageSize))
		}
		expected *= int64(img.Dim2)
	}
	if img.Rank >= 3 {
		if expected > maxImageSize {
			return nil, fmt.Errorf("%w: declared dimensions exceed the %d byte limit", ErrDecode, int64(maxImageSize))
		}
		expected *= int64(img.Dim3)
	}
	if expected > maxImageSize {
		return nil, fmt.Errorf("%w: declared dimensions exceed the %d byte limit", ErrDecode, int64(maxImageSize))
	}

	got := int64(len(buf)) - int64(dataStart)
	if got != expected {
		return nil, fmt.Errorf("%w: declared dimensions need %d bytes, payload has %d", ErrDecode, expected, got)
	}

	img.Data = make([]byte, expected)
	copy(img.Data, buf[dataStart:])
	return img, nil
}

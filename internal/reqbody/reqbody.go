// Package reqbody implements the Request Body Constructor (SPEC_FULL.md
// §4.4): decide body shape (JSON, multipart, streamed bytes, raw audio, or
// none) based on method and content-type, and produce the bytes the retry
// engine hands to the HTTP client.
package reqbody

import (
	"encoding/json"

	"github.com/ferro-labs/ai-gateway/internal/headers"
)

// Shape enumerates the request body shapes SPEC_FULL.md names.
type Shape string

const (
	ShapeJSON      Shape = "json"
	ShapeMultipart Shape = "multipart"
	ShapeStream    Shape = "stream"
	ShapeRawAudio  Shape = "raw_audio"
	ShapeNone      Shape = "none"
)

// Decide returns the body Shape for the given method/content-type/endpoint
// combination, delegating the underlying booleans to
// internal/headers.ShouldProcessRequestBody so the two packages can never
// disagree on the decision tree.
func Decide(method, providerContentType, clientContentType, endpoint string) Shape {
	if method == "GET" {
		return ShapeNone
	}
	isMultiPart, isProxyAudio, shouldJSON := headers.ShouldProcessRequestBody(providerContentType, clientContentType, endpoint)
	switch {
	case isMultiPart:
		return ShapeMultipart
	case isProxyAudio:
		return ShapeRawAudio
	case shouldJSON:
		return ShapeJSON
	default:
		return ShapeStream
	}
}

// Build renders body (already provider-transformed) into the bytes the
// retry engine should send, given the decided Shape.
//
//   - ShapeJSON: body is marshalled to JSON (or passed through unchanged if
//     already []byte).
//   - ShapeMultipart, ShapeRawAudio, ShapeStream: body must already be
//     []byte (the caller is responsible for multipart encoding/streaming
//     upstream of this package, since those shapes carry binary payloads
//     that do not round-trip through JSON).
//   - ShapeNone: returns nil regardless of body.
func Build(shape Shape, body any) ([]byte, error) {
	if shape == ShapeNone {
		return nil, nil
	}
	if b, ok := body.([]byte); ok {
		return b, nil
	}
	if shape == ShapeJSON {
		return json.Marshal(body)
	}
	if body == nil {
		return nil, nil
	}
	return nil, errUnsupportedBodyType(shape)
}

type unsupportedBodyTypeError struct {
	shape Shape
}

func (e unsupportedBodyTypeError) Error() string {
	return "reqbody: non-[]byte body not supported for shape " + string(e.shape)
}

func errUnsupportedBodyType(shape Shape) error {
	return unsupportedBodyTypeError{shape: shape}
}

// IsStreamingShape reports whether shape represents a body the processor
// must not buffer/replay in full (stream or raw audio).
func IsStreamingShape(shape Shape) bool {
	return shape == ShapeStream || shape == ShapeRawAudio
}

package pipeline

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrEmptyPayload is returned for messages carrying no image bytes.
var ErrEmptyPayload = errors.New("pipeline: empty payload")

// Message is one transport message carrying one image.
type Message struct {
	Data []byte
	Text bool // base64 text frame rather than binary
}

// Wire records how an inbound image was framed so the reply can match it.
type Wire struct {
	Text   bool
	Prefix string // data-URL header including the trailing comma, if any
}

// DecodePayload extracts raw image bytes from msg. Text messages carry
// standard base64, optionally behind a "data:image/...;base64," header.
func DecodePayload(msg Message) ([]byte, Wire, error) {
	if !msg.Text {
		if len(msg.Data) == 0 {
			return nil, Wire{}, ErrEmptyPayload
		}
		return msg.Data, Wire{}, nil
	}

	w := Wire{Text: true}
	body := bytes.TrimSpace(msg.Data)
	if bytes.HasPrefix(body, []byte("data:")) {
		i := bytes.IndexByte(body, ',')
		if i < 0 {
			return nil, w, fmt.Errorf("pipeline: malformed data URL")
		}
		w.Prefix = string(body[:i+1])
		body = body[i+1:]
	}
	if len(body) == 0 {
		return nil, w, ErrEmptyPayload
	}

	out := make([]byte, base64.StdEncoding.DecodedLen(len(body)))
	n, err := base64.StdEncoding.Decode(out, body)
	if err != nil {
		return nil, w, fmt.Errorf("pipeline: base64: %w", err)
	}
	return out[:n], w, nil
}

// EncodePayload frames img the way w describes.
func EncodePayload(img []byte, w Wire) Message {
	if !w.Text {
		return Message{Data: img}
	}
	out := make([]byte, len(w.Prefix)+base64.StdEncoding.EncodedLen(len(img)))
	copy(out, w.Prefix)
	base64.StdEncoding.Encode(out[len(w.Prefix):], img)
	return Message{Data: out, Text: true}
}

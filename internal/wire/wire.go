// Package wire implements the line protocol spoken between client and server:
//
//	<command> <json>
//	<command> [<json>, "<signature>"]
//
// The second form carries a signature over the exact bytes of the embedded
// payload object.
package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrMalformed = errors.New("wire: malformed frame")

// Frame is a decoded line.
type Frame struct {
	Command   string
	Payload   json.RawMessage
	Signature string
	Signed    bool
}

// Decode splits a line on its first space and parses the payload. Signed
// frames keep the payload bytes exactly as received so that signature
// verification sees what the signer produced.
func Decode(line []byte) (Frame, error) {
	idx := bytes.IndexByte(line, ' ')
	if idx <= 0 {
		return Frame{}, ErrMalformed
	}
	f := Frame{Command: string(line[:idx])}
	body := bytes.TrimSpace(line[idx+1:])
	if len(body) == 0 || !json.Valid(body) {
		return Frame{}, ErrMalformed
	}

	switch body[0] {
	case '{':
		f.Payload = json.RawMessage(body)
	case '[':
		var tuple []json.RawMessage
		if err := json.Unmarshal(body, &tuple); err != nil {
			return Frame{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if len(tuple) != 2 || len(tuple[0]) == 0 || tuple[0][0] != '{' {
			return Frame{}, ErrMalformed
		}
		if err := json.Unmarshal(tuple[1], &f.Signature); err != nil {
			return Frame{}, fmt.Errorf("%w: signature: %v", ErrMalformed, err)
		}
		f.Payload = tuple[0]
		f.Signed = true
	default:
		return Frame{}, ErrMalformed
	}
	return f, nil
}

// Unmarshal decodes the frame payload into v.
func (f Frame) Unmarshal(v any) error {
	if err := json.Unmarshal(f.Payload, v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrMalformed, f.Command, err)
	}
	return nil
}

// Encode produces an unsigned line.
func Encode(cmd string, payload any) ([]byte, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return join(cmd, b), nil
}

// Signer signs the canonical payload bytes.
type Signer func(payload []byte) (string, error)

// EncodeSigned serializes payload canonically, signs those bytes and embeds
// them verbatim in the tuple form.
func EncodeSigned(cmd string, payload any, sign Signer) ([]byte, error) {
	canon, err := Canonical(payload)
	if err != nil {
		return nil, err
	}
	sig, err := sign(canon)
	if err != nil {
		return nil, err
	}
	sigJSON, err := json.Marshal(sig)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(len(canon) + len(sigJSON) + 3)
	buf.WriteByte('[')
	buf.Write(canon)
	buf.WriteByte(',')
	buf.Write(sigJSON)
	buf.WriteByte(']')
	return join(cmd, buf.Bytes()), nil
}

// Canonical returns a deterministic JSON encoding of v with object keys in
// sorted order and numbers preserved exactly.
func Canonical(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}

func join(cmd string, body []byte) []byte {
	line := make([]byte, 0, len(cmd)+1+len(body))
	line = append(line, cmd...)
	line = append(line, ' ')
	return append(line, body...)
}

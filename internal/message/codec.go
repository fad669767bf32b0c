package message

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/fxamacker/cbor/v2"

	"github.com/Iron-Ham/arbiter/internal/errors"
)

// ErrIncomplete is returned by Codec.Unmarshal when data holds no complete
// record yet. Callers keep the bytes and retry once more data arrives.
var ErrIncomplete = errors.New("incomplete record")

// Codec frames messages for an append-only byte stream.
type Codec interface {
	// Name is the configuration name of the encoding.
	Name() string
	// Marshal encodes m as one self-delimiting record.
	Marshal(m Message) ([]byte, error)
	// Unmarshal decodes the first record in data and returns the bytes
	// following it. It returns ErrIncomplete when data ends mid-record.
	Unmarshal(data []byte) (Message, []byte, error)
}

// Encoding names accepted by CodecFor.
const (
	EncodingJSON = "json"
	EncodingCBOR = "cbor"
)

// Encodings lists the supported encoding names.
func Encodings() []string {
	return []string{EncodingJSON, EncodingCBOR}
}

// CodecFor returns the codec registered under name.
func CodecFor(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case EncodingJSON, "":
		return JSONCodec{}, nil
	case EncodingCBOR:
		return CBORCodec{}, nil
	}
	return nil, errors.NewValidationError("unknown encoding").WithField("encoding").WithValue(name)
}

// JSONCodec writes one JSON object per line.
type JSONCodec struct{}

func (JSONCodec) Name() string { return EncodingJSON }

func (JSONCodec) Marshal(m Message) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Kind, err)
	}
	return append(data, '\n'), nil
}

func (JSONCodec) Unmarshal(data []byte) (Message, []byte, error) {
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			return Message{}, data, ErrIncomplete
		}
		line := bytes.TrimSpace(data[:i])
		rest := data[i+1:]
		if len(line) == 0 {
			data = rest
			continue
		}
		var m Message
		if err := json.Unmarshal(line, &m); err != nil {
			return Message{}, rest, errors.Wrap(errors.Join(errors.ErrInvalidMessage, err), "decode json record")
		}
		return m, rest, nil
	}
}

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	// Core Deterministic Encoding keeps identical messages byte-identical
	// on the wire regardless of map iteration order.
	cborEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("message: CBOR encoder initialization failed: " + err.Error())
	}
	cborDec, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		IntDec:         cbor.IntDecConvertSignedOrFail,
	}.DecMode()
	if err != nil {
		panic("message: CBOR decoder initialization failed: " + err.Error())
	}
}

// CBORCodec writes a sequence of CBOR maps keyed like the JSON encoding.
type CBORCodec struct{}

func (CBORCodec) Name() string { return EncodingCBOR }

func (CBORCodec) Marshal(m Message) ([]byte, error) {
	data, err := cborEnc.Marshal(m.ToPayload())
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Kind, err)
	}
	return data, nil
}

func (CBORCodec) Unmarshal(data []byte) (Message, []byte, error) {
	if len(data) == 0 {
		return Message{}, data, ErrIncomplete
	}
	var p map[string]any
	rest, err := cborDec.UnmarshalFirst(data, &p)
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return Message{}, data, ErrIncomplete
		}
		// A malformed item cannot be skipped reliably, so the rest of the
		// buffer is dropped with it.
		return Message{}, nil, errors.Wrap(errors.Join(errors.ErrInvalidMessage, err), "decode cbor record")
	}
	m, err := FromPayload(p)
	if err != nil {
		return Message{}, rest, err
	}
	return m, rest, nil
}

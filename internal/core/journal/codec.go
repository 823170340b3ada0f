package journal

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"
)

// Bindings are CBOR with Core Deterministic Encoding (RFC 8949 §4.2): the
// same context always produces identical bytes regardless of map order.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

// zstd.Encoder and zstd.Decoder are safe for concurrent use and reused
// across calls.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("journal: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]string(nil)),
	}.DecMode()
	if err != nil {
		panic("journal: CBOR decoder initialization failed: " + err.Error())
	}

	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("journal: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("journal: zstd decoder initialization failed: " + err.Error())
	}
}

// Digest returns the hex BLAKE3-256 of a payload. Identical messages share a
// digest, which is how the history finds earlier dispatches of a message.
func Digest(payload string) string {
	sum := blake3.Sum256([]byte(payload))
	return fmt.Sprintf("%x", sum)
}

func compressPayload(payload string) []byte {
	return zstdEncoder.EncodeAll([]byte(payload), nil)
}

func decompressPayload(compressed []byte, size int) (string, error) {
	out, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, size))
	if err != nil {
		return "", fmt.Errorf("zstd decompress: %w", err)
	}
	if len(out) != size {
		return "", fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(out), size)
	}
	return string(out), nil
}

// encodeBindings encodes the final context. The data variable is dropped
// when it still equals the payload, which is stored on its own.
func encodeBindings(bindings map[string]string, payload string) ([]byte, error) {
	if len(bindings) == 0 {
		return nil, nil
	}
	trimmed := make(map[string]string, len(bindings))
	for k, v := range bindings {
		if k == "data" && v == payload {
			continue
		}
		trimmed[k] = v
	}
	return encMode.Marshal(trimmed)
}

// decodeBindings reverses encodeBindings, restoring data from the payload.
func decodeBindings(raw []byte, payload string) (map[string]string, error) {
	bindings := map[string]string{}
	if len(raw) > 0 {
		if err := decMode.Unmarshal(raw, &bindings); err != nil {
			return nil, fmt.Errorf("decode bindings: %w", err)
		}
	}
	if _, ok := bindings["data"]; !ok {
		bindings["data"] = payload
	}
	return bindings, nil
}

package callback

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// Context ids travel inside Telegram callback_data, which caps the
// whole payload at 64 bytes. Encoding the row id as a minimal
// big-endian byte string keeps the token at most 11 characters even
// for the full uint64 range.

func encodeContextID(id int64) string {
	value := uint64(id)
	if value == 0 {
		return base64.RawURLEncoding.EncodeToString([]byte{0})
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, value)
	i := 0
	for i < len(buf) && buf[i] == 0 {
		i++
	}
	return base64.RawURLEncoding.EncodeToString(buf[i:])
}

func decodeContextID(value string) (int64, error) {
	data, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return 0, fmt.Errorf("invalid context id: %w", err)
	}
	if len(data) == 0 || len(data) > 8 {
		return 0, fmt.Errorf("invalid context id length")
	}
	if len(data) < 8 {
		padded := make([]byte, 8-len(data))
		data = append(padded, data...)
	}
	return int64(binary.BigEndian.Uint64(data)), nil
}

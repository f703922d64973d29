package record

import (
	"encoding/binary"
	"time"
)

// KeySize is the width in bytes of an encoded StoreKey.
const KeySize = 8

// EncodeKey produces the 8-byte big-endian microsecond timestamp key. Key
// ordering (lexicographic on the big-endian bytes) equals chronological
// ordering, which is the store's sole sort criterion.
func EncodeKey(ts time.Time) [KeySize]byte {
	var k [KeySize]byte
	binary.BigEndian.PutUint64(k[:], uint64(ts.UTC().UnixMicro()))
	return k
}

// DecodeKey reverses EncodeKey.
func DecodeKey(k []byte) time.Time {
	us := binary.BigEndian.Uint64(k)
	return time.UnixMicro(int64(us)).UTC()
}

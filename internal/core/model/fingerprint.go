package model

import (
	"encoding/binary"
	"encoding/hex"
	"time"

	"github.com/zeebo/blake3"
)

// fingerprintKey is the BLAKE3 domain key for punch fingerprints, the ASCII
// domain name zero-padded to 32 bytes. Changing it changes every fingerprint.
var fingerprintKey = [32]byte{
	'p', 'u', 'n', 'c', 'h', 'c', 'l', 'o', 'c', 'k', '.', 'p', 'u', 'n', 'c', 'h',
}

// Fingerprint is the deduplication key of a punch: a keyed BLAKE3 hash over
// the employee id, kind, UTC timestamp and credential. The timestamp counts
// to the microsecond, so a fingerprint recomputed from a stored event
// matches. Fields are length prefixed so that no two field tuples share an
// encoding.
func Fingerprint(employeeID string, kind PunchKind, ts time.Time, credential string) string {
	hasher, err := blake3.NewKeyed(fingerprintKey[:])
	if err != nil {
		panic("model: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	for _, field := range []string{
		employeeID,
		string(kind),
		ts.UTC().Truncate(time.Microsecond).Format(time.RFC3339Nano),
		credential,
	} {
		var size [8]byte
		binary.BigEndian.PutUint64(size[:], uint64(len(field)))
		hasher.Write(size[:])
		hasher.Write([]byte(field))
	}
	return hex.EncodeToString(hasher.Sum(nil))
}

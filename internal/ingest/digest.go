package ingest

import (
	"encoding/binary"
	"encoding/hex"
	"hash"

	"golang.org/x/crypto/blake2b"
)

// Digest returns a hex blake2b-256 fingerprint of records. Param order does
// not affect the result; session and command order do.
func Digest(records []Record) string {
	h, _ := blake2b.New256(nil)

	for _, r := range records {
		writeString(h, r.ID)
		writeCount(h, len(r.Session))
		for _, c := range r.Session {
			writeString(h, c.Name)
			names := c.ParamNames()
			writeCount(h, len(names))
			for _, p := range names {
				writeString(h, p)
				writeString(h, c.Params[p])
			}
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeCount(h hash.Hash, n int) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(n))
	h.Write(buf[:])
}

// writeString length-prefixes s so adjacent fields cannot run together.
func writeString(h hash.Hash, s string) {
	writeCount(h, len(s))
	h.Write([]byte(s))
}

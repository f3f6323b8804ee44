package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// VisitID derives a stable identifier for a visit from its identifying fields.
func VisitID(url string, dt time.Time, href, context string) string {
	h := sha256.New()
	for _, part := range []string{url, dt.UTC().Format(time.RFC3339Nano), href, context} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

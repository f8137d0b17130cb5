package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// HMACAuth holds the credentials for HMAC-signed exchange requests. The
// signature is HMAC-SHA256(secret, queryString) encoded as lowercase hex and
// appended as the final "signature" parameter.
type HMACAuth struct {
	Key    string // API key, sent in the X-MBX-APIKEY header
	Secret string
}

// APIKeyHeader is the header carrying HMACAuth.Key.
const APIKeyHeader = "X-MBX-APIKEY"

// SignQuery stamps params with the current timestamp and recvWindow and
// returns the encoded query string including its signature.
func (h *HMACAuth) SignQuery(params url.Values, recvWindowMs int) string {
	return h.SignQueryAt(params, recvWindowMs, time.Now().UnixMilli())
}

// SignQueryAt is like SignQuery but lets the caller supply the Unix
// millisecond timestamp (useful for deterministic testing).
func (h *HMACAuth) SignQueryAt(params url.Values, recvWindowMs int, unixMs int64) string {
	q := url.Values{}
	for k, v := range params {
		q[k] = append([]string(nil), v...)
	}
	q.Set("timestamp", strconv.FormatInt(unixMs, 10))
	if recvWindowMs > 0 {
		q.Set("recvWindow", strconv.Itoa(recvWindowMs))
	}

	encoded := q.Encode()
	return encoded + "&signature=" + hmacSHA256Hex([]byte(h.Secret), encoded)
}

// hmacSHA256Hex computes HMAC-SHA256 of message using key and returns the
// result as lowercase hex.
func hmacSHA256Hex(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// String returns a redacted representation suitable for logging.
func (h *HMACAuth) String() string {
	redact := func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return s[:4] + "****"
	}
	return fmt.Sprintf("HMACAuth{key=%s, secret=%s}", redact(h.Key), redact(h.Secret))
}

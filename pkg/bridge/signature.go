package bridge

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/petrijr/herald/pkg/api"
)

// SignatureHeader carries the request signature.
const SignatureHeader = "x-novu-signature"

// SignatureTolerance is how old a signature may be before it is rejected.
const SignatureTolerance = 5 * time.Minute

// Sign returns the signature header value for body signed at t:
// "t=<unix ms>,v1=<hex hmac-sha256(secret, "<unix ms>.<body>")>".
func Sign(secretKey string, t time.Time, body []byte) string {
	ts := t.UnixMilli()
	return fmt.Sprintf("t=%d,v1=%s", ts, digest(secretKey, ts, body))
}

// Verify checks a signature header produced by Sign.
func Verify(secretKey, header string, body []byte, now time.Time) error {
	if secretKey == "" {
		return api.NewSigningKeyNotFoundError()
	}
	if header == "" {
		return api.NewSignatureMissingError()
	}

	var ts int64
	var sig string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return api.NewSignatureInvalidError()
			}
			ts = n
		case "v1":
			sig = v
		}
	}
	if ts == 0 || sig == "" {
		return api.NewSignatureInvalidError()
	}
	if now.Sub(time.UnixMilli(ts)) > SignatureTolerance {
		return api.NewSignatureExpiredError()
	}
	if !hmac.Equal([]byte(sig), []byte(digest(secretKey, ts, body))) {
		return api.NewSignatureInvalidError()
	}
	return nil
}

func digest(secretKey string, ts int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte{'.'})
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

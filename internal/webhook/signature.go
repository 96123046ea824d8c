package webhook

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// SignatureHeader carries the provider's request signature.
const SignatureHeader = "X-Twilio-Signature"

// ComputeSignature returns the signature the provider attaches to a
// callback: HMAC-SHA1 over the full request URL with every POST field's
// key and value appended in key order, keyed by the account auth token,
// base64 encoded.
func ComputeSignature(authToken, requestURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var payload strings.Builder
	payload.WriteString(requestURL)
	for _, k := range keys {
		for _, v := range form[k] {
			payload.WriteString(k)
			payload.WriteString(v)
		}
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(payload.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// ValidRequest reports whether the request's signature header matches the
// organization's auth token. The URL is rebuilt from publicBaseURL because
// the proxy in front of the service rewrites scheme and host. The caller
// must have parsed the form already.
func ValidRequest(r *http.Request, authToken, publicBaseURL string) bool {
	provided := r.Header.Get(SignatureHeader)
	if provided == "" || authToken == "" {
		return false
	}
	requestURL := strings.TrimRight(publicBaseURL, "/") + r.URL.RequestURI()
	expected := ComputeSignature(authToken, requestURL, r.PostForm)
	return hmac.Equal([]byte(provided), []byte(expected))
}

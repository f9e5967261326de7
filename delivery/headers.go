package delivery

import (
	"net/http"
	"time"

	"github.com/xraph/herald/signature"
)

// Header names set on every delivery.
const (
	HeaderContentType = "Content-Type"
	HeaderUserAgent   = "User-Agent"
	HeaderEvent       = "X-Herald-Event"
	HeaderDelivery    = "X-Herald-Delivery"
	HeaderTimestamp   = "X-Herald-Timestamp"
	HeaderSignature   = "X-Herald-Signature"
)

// Version is reported in the User-Agent header.
var Version = "1.0.0"

// TimestampFormat is the ISO-8601 layout of the timestamp header.
const TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

// UserAgent returns the User-Agent value for deliveries.
func UserAgent() string { return "Herald-Webhook/" + Version }

// reserved headers are always controlled by the dispatcher.
var reserved = map[string]bool{
	HeaderSignature: true,
	HeaderEvent:     true,
}

// BuildHeaders returns the header set for one dispatch. The signature header
// is present only when secret is non-empty. Custom headers override the
// defaults except the reserved signature and event headers.
func BuildHeaders(event, deliveryID string, ts time.Time, body []byte, secret string, custom map[string]string) http.Header {
	h := make(http.Header, 6+len(custom))
	h.Set(HeaderContentType, "application/json")
	h.Set(HeaderUserAgent, UserAgent())
	h.Set(HeaderEvent, event)
	h.Set(HeaderDelivery, deliveryID)
	h.Set(HeaderTimestamp, ts.UTC().Format(TimestampFormat))

	for k, v := range custom {
		if reserved[http.CanonicalHeaderKey(k)] {
			continue
		}
		h.Set(k, v)
	}

	if secret != "" {
		h.Set(HeaderSignature, signature.Sign(body, secret))
	}
	return h
}

package media

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"strconv"
	"time"
)

var (
	ErrBadSignature     = errors.New("invalid signature")
	ErrExpiredSignature = errors.New("signed url has expired")
)

// Signer produces and checks time-limited HMAC signatures over object keys.
type Signer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func NewSigner(key string, ttl time.Duration) *Signer {
	return &Signer{key: []byte(key), ttl: ttl, now: time.Now}
}

// Query returns the expires/signature query parameters granting read access
// to objectKey until now+ttl.
func (s *Signer) Query(objectKey string) url.Values {
	expires := s.now().Add(s.ttl).Unix()
	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("signature", s.mac(objectKey, expires))
	return q
}

// Verify checks the parameters produced by Query.
func (s *Signer) Verify(objectKey string, q url.Values) error {
	expires, err := strconv.ParseInt(q.Get("expires"), 10, 64)
	if err != nil {
		return ErrBadSignature
	}
	want := s.mac(objectKey, expires)
	if !hmac.Equal([]byte(want), []byte(q.Get("signature"))) {
		return ErrBadSignature
	}
	if s.now().Unix() > expires {
		return ErrExpiredSignature
	}
	return nil
}

func (s *Signer) mac(objectKey string, expires int64) string {
	h := hmac.New(sha256.New, s.key)
	h.Write([]byte(objectKey))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(expires, 10)))
	return hex.EncodeToString(h.Sum(nil))
}

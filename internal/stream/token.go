package stream

import (
	"encoding/base64"
	"encoding/json"
)

// ResumeToken carries what the server needs to resume a subscriber after a
// reconnect. Tokens are base64(JSON), not signed: a forged token only ever
// downgrades the client to a fresh snapshot, it never grants data the
// presenting identity could not already subscribe to. The subscriber field is
// re-checked against the live connection's verified identity on every resume.
type ResumeToken struct {
	Subscriber string `json:"sub"`
	LastSeq    uint64 `json:"seq"`
	IssuedAt   int64  `json:"iat"` // unix milliseconds
}

// EncodeResumeToken serializes the token into its opaque wire form.
func EncodeResumeToken(t ResumeToken) string {
	data, _ := json.Marshal(t)
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeResumeToken parses an opaque token. It returns nil for any malformed
// input: bad base64, bad JSON, wrong field types, or missing subscriber or
// issue time. It never returns an error; callers treat nil as "fall back to
// full snapshot".
func DecodeResumeToken(s string) *ResumeToken {
	if s == "" {
		return nil
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil
	}
	var t ResumeToken
	if err := json.Unmarshal(data, &t); err != nil {
		return nil
	}
	if t.Subscriber == "" || t.IssuedAt <= 0 {
		return nil
	}
	return &t
}

// ValidWithin reports whether the token was issued within the ttl window
// ending at now (both in unix milliseconds). Tokens from the future are
// rejected. A token issued exactly ttl ago is still valid.
func (t *ResumeToken) ValidWithin(nowMillis, ttlMillis int64) bool {
	age := nowMillis - t.IssuedAt
	return age >= 0 && age <= ttlMillis
}

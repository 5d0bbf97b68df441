package camo

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"strings"
)

// Camo rewrites insecure image URLs through a camo proxy so that pages
// served over https never reference plain http content.
type Camo struct {
	baseURL string
	key     []byte
}

func New(baseURL, key string) *Camo {
	return &Camo{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		key:     []byte(key),
	}
}

func (c *Camo) Enabled() bool {
	return c != nil && c.baseURL != "" && len(c.key) > 0
}

// URL returns {base}/{hex hmac-sha1(key, raw)}/{hex raw}.
func (c *Camo) URL(raw string) string {
	mac := hmac.New(sha1.New, c.key)
	mac.Write([]byte(raw))
	digest := hex.EncodeToString(mac.Sum(nil))
	return c.baseURL + "/" + digest + "/" + hex.EncodeToString([]byte(raw))
}

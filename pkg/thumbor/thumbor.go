package thumbor

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"strings"
)

const (
	// Original boyut için size segmenti kullanılmaz
	SizeOriginal = ""

	SmartCrop       = "smart"
	NoUpscaleFilter = "filters:no_upscale()"
)

// source_type values understood by the renderer.
const (
	SourceTypeLocalFile = "local_file"
	SourceTypeS3        = "s3"
	SourceTypeExternal  = "external"
)

var ErrEmptyPath = errors.New("empty path")

// Encode converts a storage path or external URL into the token the
// rendering service decodes to locate the source image.
func Encode(path string) (string, error) {
	if path == "" {
		return "", ErrEmptyPath
	}
	return base64.URLEncoding.EncodeToString([]byte(path)), nil
}

type URLBuilder struct {
	baseURL string
	key     []byte
}

// NewURLBuilder returns a builder for the given thumbor base URL. An empty
// baseURL yields a disabled builder. When key is set every URL carries an
// HMAC-SHA1 signature segment in front of the size segment.
func NewURLBuilder(baseURL, key string) *URLBuilder {
	b := &URLBuilder{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
	}
	if key != "" {
		b.key = []byte(key)
	}
	return b
}

func (b *URLBuilder) Enabled() bool {
	return b != nil && b.baseURL != ""
}

// Build composes {base}[/{sig}]/{size}/smart/filters:no_upscale()/{token}/source_type/{sourceType}.
// The size segment is left out for SizeOriginal.
func (b *URLBuilder) Build(token, size, sourceType string) string {
	parts := make([]string, 0, 6)
	if size != SizeOriginal {
		parts = append(parts, size)
	}
	parts = append(parts, SmartCrop, NoUpscaleFilter, token, "source_type", sourceType)
	path := strings.Join(parts, "/")

	if len(b.key) > 0 {
		path = b.sign(path) + "/" + path
	}
	return b.baseURL + "/" + path
}

func (b *URLBuilder) sign(path string) string {
	mac := hmac.New(sha1.New, b.key)
	mac.Write([]byte(path))
	return base64.URLEncoding.EncodeToString(mac.Sum(nil))
}

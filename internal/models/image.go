package models

import (
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const defaultImageMime = "image/png"

// Image is raw image bytes with their media type.
type Image struct {
	MimeType string
	Data     []byte
}

// NewImage sniffs the media type of data.
func NewImage(data []byte) Image {
	mime := mimetype.Detect(data).String()
	if !strings.HasPrefix(mime, "image/") {
		mime = defaultImageMime
	}
	return Image{MimeType: mime, Data: data}
}

var dataURLPrefix = regexp.MustCompile(`^data:([^;,]+)(;base64)?,`)

// ParseDataURL decodes a base64 data URL. A bare base64 payload without the
// data: prefix is accepted and its type sniffed.
func ParseDataURL(s string) (Image, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Image{}, errors.New("empty image data")
	}

	mime := ""
	payload := s
	if m := dataURLPrefix.FindStringSubmatch(s); m != nil {
		if m[2] == "" {
			return Image{}, errors.New("data url is not base64 encoded")
		}
		mime = m[1]
		payload = s[len(m[0]):]
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Image{}, fmt.Errorf("decode base64 image: %w", err)
	}
	if len(data) == 0 {
		return Image{}, errors.New("empty image data")
	}

	if mime == "" {
		return NewImage(data), nil
	}
	return Image{MimeType: mime, Data: data}, nil
}

func (i Image) Empty() bool {
	return len(i.Data) == 0
}

func (i Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}

func (i Image) DataURL() string {
	mime := i.MimeType
	if mime == "" {
		mime = defaultImageMime
	}
	return fmt.Sprintf("data:%s;base64,%s", mime, i.Base64())
}

// Extension returns the file extension for the media type, including the dot.
func (i Image) Extension() string {
	if m := mimetype.Lookup(i.MimeType); m != nil {
		return m.Extension()
	}
	return ".png"
}

func (i Image) Clone() Image {
	out := Image{MimeType: i.MimeType}
	if i.Data != nil {
		out.Data = make([]byte, len(i.Data))
		copy(out.Data, i.Data)
	}
	return out
}

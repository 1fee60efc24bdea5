// Package content reads watched files from disk.
//
// There is no cache: every Read goes back to the filesystem so
// the text handed to the renderer is what is on disk at the moment of the
// read, not at the moment the change notification arrived.
package content

import (
	"bytes"
	"os"
	"unicode/utf8"

	"github.com/conneroisu/mdpreview/internal/errors"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	bomUTF16BE = []byte{0xFE, 0xFF}
	bomUTF16LE = []byte{0xFF, 0xFE}
)

// Source reads whole files as text.
type Source struct{}

// NewSource creates a content source.
func NewSource() *Source {
	return &Source{}
}

// Read returns the current contents of path as UTF-8 text. A leading byte
// order mark selects UTF-8 or UTF-16 decoding and is stripped. Files that
// are neither are rejected with an encoding error.
func (s *Source) Read(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.WrapIO(err, "reading file", path).WithComponent("content")
	}

	text, err := decode(data)
	if err != nil {
		return "", errors.NewEncodingError(err.Error()).WithPath(path).WithComponent("content")
	}

	return text, nil
}

func decode(data []byte) (string, error) {
	utf16 := bytes.HasPrefix(data, bomUTF16BE) || bytes.HasPrefix(data, bomUTF16LE)
	if !utf16 && !utf8.Valid(data) {
		return "", errInvalidUTF8
	}

	decoded, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), data)
	if err != nil {
		return "", err
	}

	return string(decoded), nil
}

type encodingError string

func (e encodingError) Error() string { return string(e) }

const errInvalidUTF8 = encodingError("file is not valid UTF-8 text")

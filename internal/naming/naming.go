// Package naming derives the URL-safe names sounds are catalogued and served under.
package naming

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrUnsupportedExtension = errors.New("unsupported file extension")
)

// PermittedExtensions are the only file types accepted for upload or remote add.
var PermittedExtensions = []string{".wav", ".mp3"}

// UnsupportedExtensionError reports an extension outside PermittedExtensions.
type UnsupportedExtensionError struct {
	Filename  string
	Extension string
}

func (e *UnsupportedExtensionError) Error() string {
	return fmt.Sprintf("File extension not allowed. Must be one of: %s.", strings.Join(PermittedExtensions, ", "))
}

func (e *UnsupportedExtensionError) Is(target error) bool {
	return target == ErrUnsupportedExtension
}

// MakeSoundName returns the extensionless and the extension-qualified name for a
// sound, eg. ("my-sound", "my-sound.mp3"). When name is empty it is taken from the
// last path segment of source. The extension always comes from source, and for an
// absolute url only from its path, so query and fragment never reach the name.
//
// Lower-casing is a catalog key choice layered on top of MakeURLSafe, which keeps
// case: "Bar Clip" and "bar clip" land on the same key.
func MakeSoundName(source, name string) (string, string, error) {
	if name == "" {
		n, err := FilenameFromURL(source)
		if err != nil {
			return "", "", err
		}
		name = n
	}

	short := strings.ToLower(MakeURLSafe(name))
	ext := strings.ToLower(MakeURLSafe(sourceExt(source)))
	if ext != "" {
		short = strings.TrimSuffix(short, ext)
	}
	return short, short + ext, nil
}

// sourceExt is FileExt of the url path when source is an absolute url, and of
// source itself otherwise (a local filename may legally contain '?' or '#').
func sourceExt(source string) string {
	u, err := url.Parse(source)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return FileExt(source)
	}
	return FileExt(u.Path)
}

// FilenameFromURL returns the final path segment of rawURL.
// web.site/files/123.txt -> 123.txt
func FilenameFromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %q is not a valid url: %v", ErrInvalidInput, rawURL, err)
	}
	segments := strings.Split(u.Path, "/")
	return segments[len(segments)-1], nil
}

// MakeURLSafe turns spaces into dashes and drops anything outside [A-Za-z0-9-_~.].
// It does not change case.
func MakeURLSafe(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == ' ':
			b.WriteByte('-')
		case permittedRune(r):
			b.WriteRune(r)
		}
	}
	return b.String()
}

func permittedRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '-', r == '_', r == '~', r == '.':
		return true
	}
	return false
}

// FileExt returns the extension of the last path segment of s, including the dot.
// Leading dots of the segment are not an extension (".hidden" has none).
func FileExt(s string) string {
	base := s[strings.LastIndex(s, "/")+1:]
	base = strings.TrimLeft(base, ".")
	i := strings.LastIndex(base, ".")
	if i < 0 {
		return ""
	}
	return base[i:]
}

// CheckExtension returns the extension of filename if it is permitted.
func CheckExtension(filename string) (string, error) {
	ext := FileExt(filename)
	for _, p := range PermittedExtensions {
		if ext == p {
			return ext, nil
		}
	}
	return "", &UnsupportedExtensionError{Filename: filename, Extension: ext}
}

// ReplaceURLPath swaps the path of rawURL for newPath, keeping scheme and host.
func ReplaceURLPath(rawURL, newPath string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %q is not a valid url: %v", ErrInvalidInput, rawURL, err)
	}
	u.Path = newPath
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

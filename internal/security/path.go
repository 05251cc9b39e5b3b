// Package security guards the paths artifacts are written to and the URLs
// they are fetched from.
package security

import (
	"errors"
	"path/filepath"
	"strings"
)

var (
	ErrPathTraversal = errors.New("path traversal detected")
	ErrAbsolutePath  = errors.New("absolute paths are not allowed")
	ErrReservedName  = errors.New("reserved filename not allowed")
	ErrHyphenPrefix  = errors.New("filename cannot start with hyphen")
	ErrEmptyPath     = errors.New("path is empty")

	reservedNames = map[string]bool{
		"con": true, "prn": true, "aux": true, "nul": true,
		"com1": true, "com2": true, "com3": true, "com4": true,
		"com5": true, "com6": true, "com7": true, "com8": true, "com9": true,
		"lpt1": true, "lpt2": true, "lpt3": true, "lpt4": true,
		"lpt5": true, "lpt6": true, "lpt7": true, "lpt8": true, "lpt9": true,
	}
)

// ValidateSavePath accepts relative paths that stay below the working
// directory and do not name a device.
func ValidateSavePath(path string) error {
	if strings.TrimSpace(path) == "" {
		return ErrEmptyPath
	}
	if filepath.IsAbs(path) {
		return ErrAbsolutePath
	}

	cleaned := filepath.Clean(path)
	if strings.HasPrefix(cleaned, "..") || strings.Contains(path, "..") {
		return ErrPathTraversal
	}

	base := filepath.Base(cleaned)
	if isReserved(base) {
		return ErrReservedName
	}
	if strings.HasPrefix(base, "-") {
		return ErrHyphenPrefix
	}
	return nil
}

// SanitizeFilename turns an arbitrary label, such as a template name, into a
// single safe path element.
func SanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "-", "\\", "-", ":", "-", " ", "-",
		"*", "", "?", "", "\"", "",
		"<", "", ">", "", "|", "", "\x00", "",
	)
	sanitized := replacer.Replace(name)
	sanitized = strings.TrimLeft(sanitized, ".-")
	sanitized = strings.TrimRight(sanitized, ". ")

	if isReserved(sanitized) {
		sanitized += "_"
	}
	if sanitized == "" {
		sanitized = "meme"
	}
	return sanitized
}

func isReserved(base string) bool {
	stem := strings.TrimSuffix(strings.ToLower(base), filepath.Ext(base))
	return reservedNames[stem]
}

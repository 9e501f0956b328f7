package subscription

import (
	"encoding/base64"
	"fmt"
	"strings"

	pkgerrors "hunter/pkg/errors"
)

// Decode turns subscription content into a list of share links. Content may
// be plain text or base64 in any of the common alphabets, one link per line.
func Decode(content []byte) ([]string, error) {
	text := strings.TrimSpace(string(content))
	if text == "" {
		return nil, pkgerrors.ErrSubscriptionEmpty
	}

	if decoded, err := decodeBase64(text); err == nil {
		text = decoded
	}

	lines := strings.Split(text, "\n")
	uris := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if isShareLink(line) {
			uris = append(uris, line)
		}
	}

	if len(uris) == 0 {
		return nil, pkgerrors.ErrSubscriptionEmpty
	}
	return uris, nil
}

func decodeBase64(s string) (string, error) {
	s = strings.Join(strings.Fields(s), "")
	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.RawURLEncoding,
	}
	for _, enc := range encodings {
		if decoded, err := enc.DecodeString(s); err == nil {
			return string(decoded), nil
		}
	}
	return "", fmt.Errorf("failed to decode base64")
}

// isShareLink reports whether line looks like scheme://rest.
func isShareLink(line string) bool {
	idx := strings.Index(line, "://")
	if idx <= 0 {
		return false
	}
	for _, r := range line[:idx] {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '+' || r == '-' || r == '.') {
			return false
		}
	}
	return true
}

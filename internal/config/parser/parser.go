package parser

import (
	"strings"

	"hunter/internal/storage/models"
)

// Result holds the nodes parsed from a list of links.
type Result struct {
	Nodes []*models.ServerNode
	// Skipped counts links of other schemes.
	Skipped int
	// Errors holds one entry per malformed trojan link.
	Errors []error
}

// ParseAll parses every trojan link in uris. Links of other protocols are
// counted and skipped.
func ParseAll(uris []string) *Result {
	result := &Result{}
	for _, uri := range uris {
		uri = strings.TrimSpace(uri)
		if uri == "" {
			continue
		}
		if !IsTrojanURI(uri) {
			result.Skipped++
			continue
		}
		node, err := Parse(uri)
		if err != nil {
			result.Errors = append(result.Errors, err)
			continue
		}
		result.Nodes = append(result.Nodes, node)
	}
	return result
}

// IsTrojanURI reports whether uri uses the trojan scheme.
func IsTrojanURI(uri string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(uri)), scheme+"://")
}

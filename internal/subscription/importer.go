package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"hunter/internal/config/parser"
	"hunter/internal/core"
	"hunter/internal/storage/models"
	pkgerrors "hunter/pkg/errors"
)

// NodeWriter appends a node at index. Import always passes
// core.AppendIndex so that the writer picks the position.
type NodeWriter interface {
	AddOrUpdate(ctx context.Context, node *models.ServerNode, index int) error
}

// Result summarises an import.
type Result struct {
	Source     string
	Total      int // links found
	Added      int
	Duplicates int // same name or address as an existing node
	Skipped    int // links of other protocols
	Failed     int
	Errors     []error
}

// Importer appends trojan nodes from a subscription URL or a local file.
type Importer struct {
	writer  NodeWriter
	fetcher *Fetcher
	logger  *slog.Logger
}

// NewImporter creates an Importer. Nodes are written through writer so that
// the usual add rules apply.
func NewImporter(writer NodeWriter, fetcher *Fetcher, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{writer: writer, fetcher: fetcher, logger: logger}
}

// Load reads the raw content of source: an http(s) URL or a file path.
func (i *Importer) Load(ctx context.Context, source string) ([]byte, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		if i.fetcher == nil {
			return nil, &pkgerrors.SubscriptionError{Source: source, Err: fmt.Errorf("no fetcher configured")}
		}
		return i.fetcher.Fetch(ctx, source)
	}
	content, err := os.ReadFile(source)
	if err != nil {
		return nil, &pkgerrors.SubscriptionError{Source: source, Err: err}
	}
	return content, nil
}

// Import appends every new trojan node found in source. Nodes that clash
// with an existing name or address are counted as duplicates.
func (i *Importer) Import(ctx context.Context, source string) (*Result, error) {
	content, err := i.Load(ctx, source)
	if err != nil {
		return nil, err
	}
	uris, err := Decode(content)
	if err != nil {
		return nil, &pkgerrors.SubscriptionError{Source: source, Err: err}
	}

	parsed := parser.ParseAll(uris)
	result := &Result{
		Source:  source,
		Total:   len(uris),
		Skipped: parsed.Skipped,
		Failed:  len(parsed.Errors),
		Errors:  parsed.Errors,
	}
	if len(parsed.Nodes) == 0 {
		return result, &pkgerrors.SubscriptionError{Source: source, Err: pkgerrors.ErrSubscriptionEmpty}
	}

	for _, node := range parsed.Nodes {
		err := i.writer.AddOrUpdate(ctx, node, core.AppendIndex)
		switch {
		case err == nil:
			result.Added++
		case errors.Is(err, pkgerrors.ErrNodeExists):
			result.Duplicates++
			i.logger.Debug("skipping duplicate node", "node", node.Name, "addr", node.Addr)
		default:
			result.Failed++
			result.Errors = append(result.Errors, fmt.Errorf("failed to add node '%s': %w", node.Name, err))
		}
	}

	i.logger.Info("subscription imported", "source", source, "added", result.Added,
		"duplicates", result.Duplicates, "skipped", result.Skipped, "failed", result.Failed)
	return result, nil
}

package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spencerjireh/portfoliobridge/internal/content"
	"github.com/spencerjireh/portfoliobridge/internal/validation"
)

// resourceDescriptor is one entry in resources/list's result.
type resourceDescriptor struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MimeType    string `json:"mimeType"`
}

// resourceContent is one entry in resources/read's contents[] array.
type resourceContent struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType"`
	Text     string `json:"text"`
}

const resourceScheme = "portfolio://content"

// listResources enumerates the fixed resource set from spec.md §4.9: the
// all-content root plus one templated entry per known content type.
func listResources() []resourceDescriptor {
	out := []resourceDescriptor{
		{URI: resourceScheme, Name: "All published content", Description: "Every published portfolio content item", MimeType: "application/json"},
	}
	for _, t := range validation.KnownTypes() {
		out = append(out, resourceDescriptor{
			URI:         resourceScheme + "/" + string(t),
			Name:        fmt.Sprintf("Published %s items", t),
			Description: fmt.Sprintf("Published content items of type %q", t),
			MimeType:    "application/json",
		})
	}
	return out
}

// readResource dispatches a resources/read URI to the repository. Accepted
// shapes: "portfolio://content", "portfolio://content/{type}", and
// "portfolio://content/{type}/{slug}".
func readResource(ctx context.Context, repo content.Repository, uri string) (*resourceContent, *Error) {
	if uri == resourceScheme {
		items, err := repo.FindPublished(ctx, nil)
		if err != nil {
			return nil, &Error{Code: CodeInternalError, Message: "failed to load content: " + err.Error()}
		}
		return marshalResource(uri, items)
	}

	rest := strings.TrimPrefix(uri, resourceScheme+"/")
	if rest == uri {
		return nil, &Error{Code: CodeResourceNotFound, Message: "unknown resource URI: " + uri}
	}

	parts := strings.SplitN(rest, "/", 2)
	typ := content.Type(parts[0])
	if !validation.IsKnownType(typ) {
		return nil, &Error{Code: CodeResourceNotFound, Message: "unknown content type: " + parts[0]}
	}

	if len(parts) == 1 {
		items, err := repo.FindPublished(ctx, &typ)
		if err != nil {
			return nil, &Error{Code: CodeInternalError, Message: "failed to load content: " + err.Error()}
		}
		return marshalResource(uri, items)
	}

	slug := parts[1]
	item, err := repo.FindBySlug(ctx, typ, slug)
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: "failed to load content: " + err.Error()}
	}
	if item == nil || item.Status != content.StatusPublished {
		return nil, &Error{Code: CodeResourceNotFound, Message: "content item not found: " + uri}
	}
	return marshalResource(uri, item)
}

func marshalResource(uri string, v any) (*resourceContent, *Error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: "failed to encode resource: " + err.Error()}
	}
	return &resourceContent{URI: uri, MimeType: "application/json", Text: string(b)}, nil
}

// Error is mcpserver's local JSON-RPC-shaped error, distinct from
// tools.Error since resources/prompts aren't routed through the tool
// registry and don't need its ErrorCode vocabulary.
type Error struct {
	Code    int
	Message string
}

package api

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/ruleset/internal/core/auth"
	"github.com/solatis/ruleset/internal/rules"
)

// Client calls ruleset.v1.Evaluation.
type Client struct {
	conn   grpc.ClientConnInterface
	apiKey string
}

// NewClient wraps conn. apiKey may be empty when the server runs without auth.
func NewClient(conn grpc.ClientConnInterface, apiKey string) *Client {
	return &Client{conn: conn, apiKey: apiKey}
}

// BatchResult is one item's outcome from EvaluateBatch.
type BatchResult struct {
	Index int
	rules.Outcome
	Error string
}

// CatalogList is the ListCatalogs response.
type CatalogList struct {
	Version     string
	ETag        string
	NotModified bool
	Catalogs    []string
	Diagnostics []string
}

func (c *Client) invoke(ctx context.Context, method string, req map[string]any) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", method, err)
	}
	if c.apiKey != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, auth.MetadataKey, c.apiKey)
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Satisfied reports whether item satisfies the named catalog.
func (c *Client) Satisfied(ctx context.Context, catalog string, item map[string]any) (bool, error) {
	out, err := c.invoke(ctx, "Satisfied", map[string]any{"catalog": catalog, "item": itemValue(item)})
	if err != nil {
		return false, err
	}
	return out.GetFields()["satisfied"].GetBoolValue(), nil
}

// SatisfiedDetailed evaluates item and returns the failure codes.
func (c *Client) SatisfiedDetailed(ctx context.Context, catalog string, item map[string]any) (rules.Outcome, error) {
	out, err := c.invoke(ctx, "SatisfiedDetailed", map[string]any{"catalog": catalog, "item": itemValue(item)})
	if err != nil {
		return rules.Outcome{}, err
	}
	return outcomeFrom(out), nil
}

// FirstMatching returns the label of the first satisfied group.
func (c *Client) FirstMatching(ctx context.Context, catalog string, item map[string]any) (string, bool, error) {
	out, err := c.invoke(ctx, "FirstMatching", map[string]any{"catalog": catalog, "item": itemValue(item)})
	if err != nil {
		return "", false, err
	}
	f := out.GetFields()
	return f["label"].GetStringValue(), f["matched"].GetBoolValue(), nil
}

// EvaluateBatch evaluates items against one catalog.
func (c *Client) EvaluateBatch(ctx context.Context, catalog string, items []map[string]any, detailed bool) ([]BatchResult, error) {
	list := make([]any, len(items))
	for i, it := range items {
		list[i] = itemValue(it)
	}
	out, err := c.invoke(ctx, "EvaluateBatch", map[string]any{"catalog": catalog, "items": list, "detailed": detailed})
	if err != nil {
		return nil, err
	}

	values := out.GetFields()["results"].GetListValue().GetValues()
	results := make([]BatchResult, len(values))
	for i, v := range values {
		r := v.GetStructValue()
		results[i] = BatchResult{
			Index:   int(r.GetFields()["index"].GetNumberValue()),
			Outcome: outcomeFrom(r),
			Error:   r.GetFields()["error"].GetStringValue(),
		}
	}
	return results, nil
}

// ListCatalogs lists loaded catalogs; pass the last etag to skip an unchanged list.
func (c *Client) ListCatalogs(ctx context.Context, ifNoneMatch string) (CatalogList, error) {
	req := map[string]any{}
	if ifNoneMatch != "" {
		req["if_none_match"] = ifNoneMatch
	}
	out, err := c.invoke(ctx, "ListCatalogs", req)
	if err != nil {
		return CatalogList{}, err
	}
	f := out.GetFields()
	return CatalogList{
		Version:     f["version"].GetStringValue(),
		ETag:        f["etag"].GetStringValue(),
		NotModified: f["not_modified"].GetBoolValue(),
		Catalogs:    stringsFrom(f["catalogs"]),
		Diagnostics: stringsFrom(f["diagnostics"]),
	}, nil
}

// Reload asks the server to recompile from its source; returns the new
// version and any compile diagnostics.
func (c *Client) Reload(ctx context.Context) (string, []string, error) {
	out, err := c.invoke(ctx, "Reload", map[string]any{})
	if err != nil {
		return "", nil, err
	}
	f := out.GetFields()
	return f["version"].GetStringValue(), stringsFrom(f["diagnostics"]), nil
}

// itemValue sends a nil item as null rather than an empty object.
func itemValue(item map[string]any) any {
	if item == nil {
		return nil
	}
	return item
}

func outcomeFrom(s *structpb.Struct) rules.Outcome {
	f := s.GetFields()
	o := rules.Outcome{Satisfied: f["satisfied"].GetBoolValue()}
	if !o.Satisfied {
		o.Codes = stringsFrom(f["codes"])
		if o.Codes == nil {
			o.Codes = []string{}
		}
	}
	return o
}

func stringsFrom(v *structpb.Value) []string {
	values := v.GetListValue().GetValues()
	if values == nil {
		return nil
	}
	out := make([]string, len(values))
	for i, x := range values {
		out[i] = x.GetStringValue()
	}
	return out
}

package api

import (
	"context"
	"crypto/sha256"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/ruleset/internal/rules"
	"github.com/solatis/ruleset/internal/types"
)

// ListCatalogs reports the loaded catalogs. Request: {if_none_match?}.
// Response: {version, etag, not_modified, catalogs: [...], diagnostics: [...]}.
// When if_none_match equals the current etag the name list is omitted.
func (s *Service) ListCatalogs(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	snap := s.engine.Snapshot()
	etag := computeETag(snap)

	resp := map[string]any{
		"version":      string(snap.Version),
		"etag":         etag,
		"not_modified": false,
	}
	if inm := req.GetFields()["if_none_match"].GetStringValue(); inm != "" && inm == etag {
		resp["not_modified"] = true
		return newResponse(resp)
	}

	resp["catalogs"] = stringList(snap.Names())
	resp["diagnostics"] = stringList(diagnostics(snap.Diagnostics))
	return newResponse(resp)
}

// computeETag hashes the compiled catalog content, so reloading identical
// catalogs keeps the same etag even though the version changes.
func computeETag(snap *rules.Snapshot[types.Record]) string {
	h := sha256.New()
	for _, name := range snap.Names() {
		cat, err := snap.Catalog(name)
		if err != nil {
			continue
		}
		fmt.Fprintf(h, "catalog %q\n", name)
		for _, g := range cat.Groups() {
			fmt.Fprintf(h, "group %q\n", g.Label())
			for _, c := range g.Conditions() {
				fmt.Fprintf(h, "condition %s code=%q\n", c.Condition(), c.Code())
			}
		}
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

package api

import (
	"encoding/base64"
	"fmt"
	"unicode/utf8"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/mario/internal/rules"
	"github.com/solatis/mario/internal/types"
)

// PlumbRequest is the decoded form of a Plumb request Struct:
//
//	{kind: "raw|text|url" or "", data: string, data_base64: string, dry_run: bool}
//
// data carries UTF-8 payloads, data_base64 anything else. An empty kind asks
// the server to guess.
type PlumbRequest struct {
	Message types.Message
	DryRun  bool
}

// PlumbResponse is the decoded form of a Plumb response Struct.
type PlumbResponse struct {
	DispatchID string
	Matched    bool
	RuleName   string
	Completed  bool
	Actions    []ActionResult
}

// ActionResult reports one action of the matching rule.
type ActionResult struct {
	Verb      string
	Argument  string
	Succeeded bool
	Skipped   bool
	Detail    string
}

// Encode builds the wire form of the request.
func (r PlumbRequest) Encode() (*structpb.Struct, error) {
	fields := map[string]any{
		"dry_run": r.DryRun,
	}
	if r.Message.Kind != types.KindUnspecified {
		fields["kind"] = r.Message.Kind.String()
	}
	// Struct strings must be valid UTF-8
	if r.Message.Kind == types.KindRaw || !utf8.ValidString(r.Message.Data) {
		fields["data_base64"] = base64.StdEncoding.EncodeToString([]byte(r.Message.Data))
	} else {
		fields["data"] = r.Message.Data
	}
	return structpb.NewStruct(fields)
}

// DecodePlumbRequest validates and decodes a request. Errors wrap
// types.ErrUnknownKind for a bad kind.
func DecodePlumbRequest(s *structpb.Struct) (PlumbRequest, error) {
	var req PlumbRequest
	f := s.GetFields()

	data, hasData := stringField(f, "data")
	encoded, hasEncoded := stringField(f, "data_base64")
	switch {
	case hasData && hasEncoded:
		return req, fmt.Errorf("set either data or data_base64, not both")
	case hasEncoded:
		raw, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return req, fmt.Errorf("data_base64: %w", err)
		}
		req.Message.Data = string(raw)
	case hasData:
		req.Message.Data = data
	default:
		return req, fmt.Errorf("data or data_base64 is required")
	}

	if kind, ok := stringField(f, "kind"); ok && kind != "" {
		k, err := types.ParseKind(kind)
		if err != nil {
			return req, err
		}
		req.Message.Kind = k
	} else {
		req.Message.Kind = types.GuessKind([]byte(req.Message.Data))
	}

	if v, ok := f["dry_run"]; ok {
		req.DryRun = v.GetBoolValue()
	}
	return req, nil
}

// NewPlumbResponse converts a dispatch result. res may be nil.
func NewPlumbResponse(id types.DispatchID, res *rules.Result) PlumbResponse {
	resp := PlumbResponse{DispatchID: string(id)}
	if res == nil {
		return resp
	}
	resp.Matched = res.Matched
	resp.RuleName = res.RuleName
	resp.Completed = res.Completed
	for _, a := range res.Actions {
		resp.Actions = append(resp.Actions, ActionResult{
			Verb:      a.Verb.String(),
			Argument:  a.Resolved,
			Succeeded: a.Succeeded,
			Skipped:   a.Skipped,
			Detail:    a.Detail,
		})
	}
	return resp
}

// Encode builds the wire form of the response.
func (r PlumbResponse) Encode() (*structpb.Struct, error) {
	actions := make([]any, 0, len(r.Actions))
	for _, a := range r.Actions {
		actions = append(actions, map[string]any{
			"verb":      a.Verb,
			"argument":  a.Argument,
			"succeeded": a.Succeeded,
			"skipped":   a.Skipped,
			"detail":    a.Detail,
		})
	}
	return structpb.NewStruct(map[string]any{
		"dispatch_id": r.DispatchID,
		"matched":     r.Matched,
		"rule_name":   r.RuleName,
		"completed":   r.Completed,
		"actions":     actions,
	})
}

// DecodePlumbResponse reads a response Struct.
func DecodePlumbResponse(s *structpb.Struct) PlumbResponse {
	f := s.GetFields()
	resp := PlumbResponse{
		Matched:   f["matched"].GetBoolValue(),
		Completed: f["completed"].GetBoolValue(),
	}
	resp.DispatchID, _ = stringField(f, "dispatch_id")
	resp.RuleName, _ = stringField(f, "rule_name")
	for _, v := range f["actions"].GetListValue().GetValues() {
		af := v.GetStructValue().GetFields()
		a := ActionResult{
			Succeeded: af["succeeded"].GetBoolValue(),
			Skipped:   af["skipped"].GetBoolValue(),
		}
		a.Verb, _ = stringField(af, "verb")
		a.Argument, _ = stringField(af, "argument")
		a.Detail, _ = stringField(af, "detail")
		resp.Actions = append(resp.Actions, a)
	}
	return resp
}

// RuleSummary is one entry of a ListRules response.
type RuleSummary struct {
	Name   string
	Source string // canonical rule text
}

// RulesResponse is the decoded form of a ListRules response:
//
//	{etag: string, not_modified: bool, rules: [{name, source}]}
type RulesResponse struct {
	ETag        string
	NotModified bool
	Rules       []RuleSummary
}

// Encode builds the wire form of the response.
func (r RulesResponse) Encode() (*structpb.Struct, error) {
	list := make([]any, 0, len(r.Rules))
	for _, rs := range r.Rules {
		list = append(list, map[string]any{"name": rs.Name, "source": rs.Source})
	}
	return structpb.NewStruct(map[string]any{
		"etag":         r.ETag,
		"not_modified": r.NotModified,
		"rules":        list,
	})
}

// DecodeRulesResponse reads a ListRules response Struct.
func DecodeRulesResponse(s *structpb.Struct) RulesResponse {
	f := s.GetFields()
	resp := RulesResponse{NotModified: f["not_modified"].GetBoolValue()}
	resp.ETag, _ = stringField(f, "etag")
	for _, v := range f["rules"].GetListValue().GetValues() {
		rf := v.GetStructValue().GetFields()
		var rs RuleSummary
		rs.Name, _ = stringField(rf, "name")
		rs.Source, _ = stringField(rf, "source")
		resp.Rules = append(resp.Rules, rs)
	}
	return resp
}

// NewRulesRequest builds a ListRules request; ifNoneMatch may be empty.
func NewRulesRequest(ifNoneMatch string) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{"if_none_match": ifNoneMatch})
}

func stringField(f map[string]*structpb.Value, key string) (string, bool) {
	v, ok := f[key]
	if !ok {
		return "", false
	}
	sv, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", false
	}
	return sv.StringValue, true
}

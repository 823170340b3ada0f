package api

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// ListRules returns the canonical text of every loaded rule.
// A request whose if_none_match equals the current ETag gets an empty,
// not_modified response.
func (s *PlumberService) ListRules(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	_, etag, texts := s.snapshot()

	resp := RulesResponse{ETag: etag}
	if ifNoneMatch, _ := stringField(in.GetFields(), "if_none_match"); ifNoneMatch == etag {
		resp.NotModified = true
	} else {
		resp.Rules = texts
	}

	out, err := resp.Encode()
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

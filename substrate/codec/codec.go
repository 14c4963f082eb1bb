// Package codec provides a wire format for carrying a Message across a
// transport boundary (spec §6 "Out of scope... treated as drivers"):
// fixed meta fields travel as typed struct fields, the opaque body is
// re-marshaled through encoding/json into a structpb.Value so that
// arbitrary Go types survive the trip without the codec needing to know
// their shape.
package codec

import (
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/relaykernel/substrate/substrate/message"
)

// Encode converts m into a structpb.Struct suitable for protobuf/JSON wire
// transmission.
func Encode(m *message.Message) (*structpb.Struct, error) {
	bodyValue, err := bodyToValue(m.Body)
	if err != nil {
		return nil, fmt.Errorf("codec: encode body: %w", err)
	}

	fields := map[string]any{
		"id":   m.ID,
		"path": m.Path,
		"body": bodyValue.AsInterface(),
		"meta": map[string]any{
			"traceId":           m.Meta.TraceID,
			"createdAt":         m.Meta.CreatedAt.Format(time.RFC3339Nano),
			"type":              string(m.Meta.Type),
			"callerId":          m.Meta.CallerID,
			"callerIdSetBy":     m.Meta.CallerIDSetBy,
			"isResponse":        m.Meta.IsResponse,
			"correlationId":     m.Meta.CorrelationID,
			"replyTo":           m.Meta.ReplyTo,
			"requiresResponse":  m.Meta.RequiresResponse,
			"responseTimeoutMs": m.Meta.ResponseTimeoutMs,
		},
	}

	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("codec: encode envelope: %w", err)
	}
	return s, nil
}

// Decode reconstructs a Message from a structpb.Struct produced by Encode.
func Decode(s *structpb.Struct) (*message.Message, error) {
	if s == nil {
		return nil, fmt.Errorf("codec: nil struct")
	}
	fields := s.GetFields()

	metaStruct := fields["meta"].GetStructValue()
	if metaStruct == nil {
		return nil, fmt.Errorf("codec: missing meta")
	}
	mf := metaStruct.GetFields()

	createdAt, err := time.Parse(time.RFC3339Nano, mf["createdAt"].GetStringValue())
	if err != nil {
		return nil, fmt.Errorf("codec: decode createdAt: %w", err)
	}

	m := &message.Message{
		ID:   fields["id"].GetStringValue(),
		Path: fields["path"].GetStringValue(),
		Body: fields["body"].AsInterface(),
		Meta: message.Meta{
			TraceID:           mf["traceId"].GetStringValue(),
			CreatedAt:         createdAt,
			Type:              message.Type(mf["type"].GetStringValue()),
			CallerID:          mf["callerId"].GetStringValue(),
			CallerIDSetBy:     mf["callerIdSetBy"].GetStringValue(),
			IsResponse:        mf["isResponse"].GetBoolValue(),
			CorrelationID:     mf["correlationId"].GetStringValue(),
			ReplyTo:           mf["replyTo"].GetStringValue(),
			RequiresResponse:  mf["requiresResponse"].GetBoolValue(),
			ResponseTimeoutMs: int(mf["responseTimeoutMs"].GetNumberValue()),
		},
	}
	return m, nil
}

// bodyToValue converts an arbitrary Go value into a structpb.Value via a
// JSON round-trip, since structpb.NewValue only accepts the narrow set of
// JSON-primitive Go types directly.
func bodyToValue(body any) (*structpb.Value, error) {
	if body == nil {
		return structpb.NewNullValue(), nil
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return structpb.NewValue(generic)
}

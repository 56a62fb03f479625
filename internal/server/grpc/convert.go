package grpcserver

import (
	"strings"

	"github.com/rzbill/evbus/internal/events"
	eventsvc "github.com/rzbill/evbus/internal/services/events"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// EventToStruct converts an event to a Struct.
func EventToStruct(ev *events.Event) (*structpb.Struct, error) {
	return structpb.NewStruct(ev.Native())
}

// StructToEvent converts a Struct to an event. The Struct must carry a
// non-empty string "type".
func StructToEvent(s *structpb.Struct) (*events.Event, error) {
	data, err := protojson.Marshal(s)
	if err != nil {
		return nil, err
	}
	return events.Decode(data)
}

// SubscribeRequestToStruct builds the Subscribe request message.
func SubscribeRequestToStruct(req eventsvc.SubscribeRequest) (*structpb.Struct, error) {
	types := make([]any, 0, len(req.Types))
	for _, t := range req.Types {
		types = append(types, t)
	}
	m := map[string]any{"types": types, "queue": req.Queue}
	if req.Filter != "" {
		m["filter"] = req.Filter
	}
	return structpb.NewStruct(m)
}

// subscribeRequestFromStruct reads types (list or comma separated
// string), queue and filter.
func subscribeRequestFromStruct(s *structpb.Struct) eventsvc.SubscribeRequest {
	var req eventsvc.SubscribeRequest
	f := s.GetFields()
	switch v := f["types"].GetKind().(type) {
	case *structpb.Value_ListValue:
		for _, item := range v.ListValue.GetValues() {
			if t := item.GetStringValue(); t != "" {
				req.Types = append(req.Types, t)
			}
		}
	case *structpb.Value_StringValue:
		for _, t := range strings.Split(v.StringValue, ",") {
			if t = strings.TrimSpace(t); t != "" {
				req.Types = append(req.Types, t)
			}
		}
	}
	req.Queue = f["queue"].GetStringValue()
	req.Filter = f["filter"].GetStringValue()
	return req
}

package bus

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Subject prefixes used by the workflow engine.
const (
	SubjectTriggerPrefix  = "mediaflow.trigger."
	SubjectWorkflowPrefix = "mediaflow.workflow."
	SubjectTriggerAll     = SubjectTriggerPrefix + ">"
)

// Event is the envelope carried on every engine subject.
type Event struct {
	ID          string
	Type        string
	WorkflowID  string
	ExecutionID string
	OwnerID     string
	Data        map[string]any
	Time        time.Time
}

// TriggerSubject returns the subject inbound triggers of the given type use.
func TriggerSubject(triggerType string) string {
	return SubjectTriggerPrefix + strings.TrimSpace(triggerType)
}

// WorkflowSubject returns the subject completion events with status use.
func WorkflowSubject(status string) string {
	return SubjectWorkflowPrefix + strings.TrimSpace(status)
}

func typeFromSubject(subject string) string {
	switch {
	case strings.HasPrefix(subject, SubjectTriggerPrefix):
		return strings.TrimPrefix(subject, SubjectTriggerPrefix)
	case strings.HasPrefix(subject, SubjectWorkflowPrefix):
		return strings.TrimPrefix(subject, SubjectWorkflowPrefix)
	}
	return ""
}

var errBadEnvelope = errors.New("malformed event envelope")

// EncodeEvent serializes evt as a protobuf Struct envelope.
func EncodeEvent(evt Event) ([]byte, error) {
	data, err := normalizeData(evt.Data)
	if err != nil {
		return nil, fmt.Errorf("encode event data: %w", err)
	}
	ts := evt.Time
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	pbTime := timestamppb.New(ts)
	envelope := &structpb.Struct{Fields: map[string]*structpb.Value{
		"id":          structpb.NewStringValue(evt.ID),
		"type":        structpb.NewStringValue(evt.Type),
		"workflowId":  structpb.NewStringValue(evt.WorkflowID),
		"executionId": structpb.NewStringValue(evt.ExecutionID),
		"ownerId":     structpb.NewStringValue(evt.OwnerID),
		"data":        structpb.NewStructValue(data),
		"time": structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"seconds": structpb.NewNumberValue(float64(pbTime.GetSeconds())),
			"nanos":   structpb.NewNumberValue(float64(pbTime.GetNanos())),
		}}),
	}}
	return proto.Marshal(envelope)
}

// DecodeEvent parses an envelope produced by EncodeEvent.
func DecodeEvent(raw []byte) (Event, error) {
	var envelope structpb.Struct
	if err := proto.Unmarshal(raw, &envelope); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	fields := envelope.GetFields()
	if fields == nil {
		return Event{}, errBadEnvelope
	}
	evt := Event{
		ID:          fields["id"].GetStringValue(),
		Type:        fields["type"].GetStringValue(),
		WorkflowID:  fields["workflowId"].GetStringValue(),
		ExecutionID: fields["executionId"].GetStringValue(),
		OwnerID:     fields["ownerId"].GetStringValue(),
	}
	if data := fields["data"].GetStructValue(); data != nil {
		evt.Data = data.AsMap()
	}
	if evt.Data == nil {
		evt.Data = map[string]any{}
	}
	if tv := fields["time"].GetStructValue(); tv != nil {
		ts := &timestamppb.Timestamp{
			Seconds: int64(tv.GetFields()["seconds"].GetNumberValue()),
			Nanos:   int32(tv.GetFields()["nanos"].GetNumberValue()),
		}
		if err := ts.CheckValid(); err != nil {
			return Event{}, fmt.Errorf("%w: %v", errBadEnvelope, err)
		}
		evt.Time = ts.AsTime()
	}
	return evt, nil
}

// normalizeData converts arbitrary Go values into the JSON-compatible shapes
// structpb accepts.
func normalizeData(data map[string]any) (*structpb.Struct, error) {
	if len(data) == 0 {
		return &structpb.Struct{Fields: map[string]*structpb.Value{}}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var plain map[string]any
	if err := json.Unmarshal(raw, &plain); err != nil {
		return nil, err
	}
	return structpb.NewStruct(plain)
}

package server

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/glinharesb/chevron-bridge/internal/audit"
)

func stringField(s *structpb.Struct, name string) string {
	return s.GetFields()[name].GetStringValue()
}

func numberField(s *structpb.Struct, name string) float64 {
	return s.GetFields()[name].GetNumberValue()
}

func timeField(s *structpb.Struct, name string) (time.Time, error) {
	raw := stringField(s, name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", name, err)
	}
	return t, nil
}

func filterFromStruct(s *structpb.Struct) (audit.Filter, error) {
	f := audit.Filter{
		Operation: stringField(s, "operation"),
		TaskID:    stringField(s, "task_id"),
		Status:    stringField(s, "status"),
		Limit:     int(numberField(s, "limit")),
	}
	var err error
	if f.Start, err = timeField(s, "start"); err != nil {
		return f, err
	}
	if f.End, err = timeField(s, "end"); err != nil {
		return f, err
	}
	return f, nil
}

func filterToMap(f audit.Filter) map[string]any {
	m := map[string]any{}
	if f.Operation != "" {
		m["operation"] = f.Operation
	}
	if f.TaskID != "" {
		m["task_id"] = f.TaskID
	}
	if f.Status != "" {
		m["status"] = f.Status
	}
	if !f.Start.IsZero() {
		m["start"] = f.Start.Format(time.RFC3339Nano)
	}
	if !f.End.IsZero() {
		m["end"] = f.End.Format(time.RFC3339Nano)
	}
	if f.Limit > 0 {
		m["limit"] = f.Limit
	}
	return m
}

func entryToMap(e audit.Entry) map[string]any {
	m := map[string]any{
		"id":          e.ID,
		"timestamp":   e.Timestamp.Format(time.RFC3339Nano),
		"operation":   e.Operation,
		"status":      e.Status,
		"duration_ns": float64(e.Duration.Nanoseconds()),
	}
	if e.TaskID != "" {
		m["task_id"] = e.TaskID
	}
	if e.Provider != "" {
		m["provider"] = e.Provider
	}
	if e.Peer != "" {
		m["peer"] = e.Peer
	}
	if len(e.Metadata) > 0 {
		md := make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			md[k] = v
		}
		m["metadata"] = md
	}
	return m
}

func entryToStruct(e audit.Entry) (*structpb.Struct, error) {
	return structpb.NewStruct(entryToMap(e))
}

func entryFromStruct(s *structpb.Struct) (audit.Entry, error) {
	e := audit.Entry{
		ID:        stringField(s, "id"),
		Operation: stringField(s, "operation"),
		TaskID:    stringField(s, "task_id"),
		Status:    stringField(s, "status"),
		Provider:  stringField(s, "provider"),
		Peer:      stringField(s, "peer"),
		Duration:  time.Duration(numberField(s, "duration_ns")),
	}
	var err error
	if e.Timestamp, err = timeField(s, "timestamp"); err != nil {
		return e, err
	}
	if md := s.GetFields()["metadata"].GetStructValue(); md != nil {
		e.Metadata = make(map[string]string, len(md.GetFields()))
		for k, v := range md.GetFields() {
			e.Metadata[k] = v.GetStringValue()
		}
	}
	return e, nil
}

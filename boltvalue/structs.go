package boltvalue

import "fmt"

// Struct is the generic shape a PackStream structure decodes to before the
// value layer interprets its tag: a tag byte plus positional fields. The
// packstream package knows nothing about Node, Duration, and so on — it
// only knows Struct. Dehydrate and Hydrate are the two directions of the
// tag↔Go-type mapping that the message layer and packstream's hook points
// both call through.
type Struct struct {
	Tag    byte
	Fields []any
}

// Dehydrate converts a Go value from this package into the Struct a
// PackStream encoder should write, or returns ok=false if v is not one of
// the types this package owns. Grounded on the teacher's
// internal/bolt/dehydrator.go type switch, extended with the graph
// structures (Node/Relationship/UnboundRelationship/Path) that the
// retrieved driver snapshot predates.
func Dehydrate(v any) (*Struct, bool, error) {
	switch x := v.(type) {
	case Node:
		return &Struct{Tag: TagNode, Fields: []any{x.ID, toAnySlice(x.Labels), x.Properties, x.ElementID}}, true, nil
	case Relationship:
		return &Struct{Tag: TagRelationship, Fields: []any{
			x.ID, x.StartNodeID, x.EndNodeID, x.Type, x.Properties,
			x.ElementID, x.StartElementID, x.EndElementID,
		}}, true, nil
	case UnboundRelationship:
		return &Struct{Tag: TagUnboundRelationship, Fields: []any{x.ID, x.Type, x.Properties, x.ElementID}}, true, nil
	case Path:
		nodes := make([]any, len(x.Nodes))
		for i, n := range x.Nodes {
			nodes[i] = n
		}
		rels := make([]any, len(x.Rels))
		for i, r := range x.Rels {
			rels[i] = r
		}
		return &Struct{Tag: TagPath, Fields: []any{nodes, rels, toAnySlice(x.Indices)}}, true, nil
	case Date:
		return &Struct{Tag: TagDate, Fields: []any{x.Days}}, true, nil
	case Time:
		return &Struct{Tag: TagTime, Fields: []any{x.Nanoseconds, x.OffsetSeconds}}, true, nil
	case LocalTime:
		return &Struct{Tag: TagLocalTime, Fields: []any{x.Nanoseconds}}, true, nil
	case DateTime:
		return &Struct{Tag: TagDateTimeOffset, Fields: []any{x.Seconds, x.Nanoseconds, x.OffsetSeconds}}, true, nil
	case DateTimeZoneID:
		return &Struct{Tag: TagDateTimeZoneID, Fields: []any{x.Seconds, x.Nanoseconds, x.ZoneID}}, true, nil
	case LocalDateTime:
		return &Struct{Tag: TagLocalDateTime, Fields: []any{x.Seconds, x.Nanoseconds}}, true, nil
	case Duration:
		return &Struct{Tag: TagDuration, Fields: []any{x.Months, x.Days, x.Seconds, x.Nanoseconds}}, true, nil
	case Point2D:
		return &Struct{Tag: TagPoint2D, Fields: []any{x.SRID, x.X, x.Y}}, true, nil
	case Point3D:
		return &Struct{Tag: TagPoint3D, Fields: []any{x.SRID, x.X, x.Y, x.Z}}, true, nil
	default:
		return nil, false, nil
	}
}

// Hydrate converts a decoded structure tag and its fields back into the Go
// value this package owns. Grounded on the teacher's
// internal/bolt/hydrator.go hydrate() dispatch, likewise extended with
// element-ids (absent from the retrieved driver snapshot, required by §3).
func Hydrate(tag byte, fields []any) (any, error) {
	switch tag {
	case TagNode:
		if len(fields) != 4 {
			return nil, &ErrFieldCount{Tag: tag, Expected: 4, Got: len(fields)}
		}
		labels, err := toStringSlice(fields[1])
		if err != nil {
			return nil, err
		}
		props, err := toDict(fields[2])
		if err != nil {
			return nil, err
		}
		elementID, _ := fields[3].(string)
		return Node{ID: toInt64(fields[0]), Labels: labels, Properties: props, ElementID: elementID}, nil
	case TagRelationship:
		if len(fields) != 8 {
			return nil, &ErrFieldCount{Tag: tag, Expected: 8, Got: len(fields)}
		}
		props, err := toDict(fields[4])
		if err != nil {
			return nil, err
		}
		return Relationship{
			ID: toInt64(fields[0]), StartNodeID: toInt64(fields[1]), EndNodeID: toInt64(fields[2]),
			Type: fmt.Sprint(fields[3]), Properties: props,
			ElementID: fmt.Sprint(fields[5]), StartElementID: fmt.Sprint(fields[6]), EndElementID: fmt.Sprint(fields[7]),
		}, nil
	case TagUnboundRelationship:
		if len(fields) != 4 {
			return nil, &ErrFieldCount{Tag: tag, Expected: 4, Got: len(fields)}
		}
		props, err := toDict(fields[2])
		if err != nil {
			return nil, err
		}
		return UnboundRelationship{ID: toInt64(fields[0]), Type: fmt.Sprint(fields[1]), Properties: props, ElementID: fmt.Sprint(fields[3])}, nil
	case TagPath:
		if len(fields) != 3 {
			return nil, &ErrFieldCount{Tag: tag, Expected: 3, Got: len(fields)}
		}
		rawNodes, ok := fields[0].([]any)
		if !ok {
			return nil, fmt.Errorf("path: nodes field is not a list")
		}
		nodes := make([]Node, len(rawNodes))
		for i, rn := range rawNodes {
			n, ok := rn.(Node)
			if !ok {
				return nil, fmt.Errorf("path: element %d is not a Node", i)
			}
			nodes[i] = n
		}
		rawRels, ok := fields[1].([]any)
		if !ok {
			return nil, fmt.Errorf("path: rels field is not a list")
		}
		rels := make([]UnboundRelationship, len(rawRels))
		for i, rr := range rawRels {
			r, ok := rr.(UnboundRelationship)
			if !ok {
				return nil, fmt.Errorf("path: element %d is not an UnboundRelationship", i)
			}
			rels[i] = r
		}
		indices, err := toInt64Slice(fields[2])
		if err != nil {
			return nil, err
		}
		if (len(indices) == 0) != (len(rels) == 0) {
			return nil, fmt.Errorf("path: index array must be non-empty iff there are relationships")
		}
		return Path{Nodes: nodes, Rels: rels, Indices: indices}, nil
	case TagDate:
		if len(fields) != 1 {
			return nil, &ErrFieldCount{Tag: tag, Expected: 1, Got: len(fields)}
		}
		return Date{Days: toInt64(fields[0])}, nil
	case TagTime:
		if len(fields) != 2 {
			return nil, &ErrFieldCount{Tag: tag, Expected: 2, Got: len(fields)}
		}
		return Time{Nanoseconds: toInt64(fields[0]), OffsetSeconds: toInt64(fields[1])}, nil
	case TagLocalTime:
		if len(fields) != 1 {
			return nil, &ErrFieldCount{Tag: tag, Expected: 1, Got: len(fields)}
		}
		return LocalTime{Nanoseconds: toInt64(fields[0])}, nil
	case TagDateTimeOffset:
		if len(fields) != 3 {
			return nil, &ErrFieldCount{Tag: tag, Expected: 3, Got: len(fields)}
		}
		return DateTime{Seconds: toInt64(fields[0]), Nanoseconds: toInt64(fields[1]), OffsetSeconds: toInt64(fields[2])}, nil
	case TagDateTimeZoneID:
		if len(fields) != 3 {
			return nil, &ErrFieldCount{Tag: tag, Expected: 3, Got: len(fields)}
		}
		return DateTimeZoneID{Seconds: toInt64(fields[0]), Nanoseconds: toInt64(fields[1]), ZoneID: fmt.Sprint(fields[2])}, nil
	case TagLocalDateTime:
		if len(fields) != 2 {
			return nil, &ErrFieldCount{Tag: tag, Expected: 2, Got: len(fields)}
		}
		return LocalDateTime{Seconds: toInt64(fields[0]), Nanoseconds: toInt64(fields[1])}, nil
	case TagDuration:
		if len(fields) != 4 {
			return nil, &ErrFieldCount{Tag: tag, Expected: 4, Got: len(fields)}
		}
		return Duration{Months: toInt64(fields[0]), Days: toInt64(fields[1]), Seconds: toInt64(fields[2]), Nanoseconds: toInt64(fields[3])}, nil
	case TagPoint2D:
		if len(fields) != 3 {
			return nil, &ErrFieldCount{Tag: tag, Expected: 3, Got: len(fields)}
		}
		return Point2D{SRID: toInt64(fields[0]), X: toFloat64(fields[1]), Y: toFloat64(fields[2])}, nil
	case TagPoint3D:
		if len(fields) != 4 {
			return nil, &ErrFieldCount{Tag: tag, Expected: 4, Got: len(fields)}
		}
		return Point3D{SRID: toInt64(fields[0]), X: toFloat64(fields[1]), Y: toFloat64(fields[2]), Z: toFloat64(fields[3])}, nil
	default:
		return nil, fmt.Errorf("unknown structure tag %#x", tag)
	}
}

func toAnySlice[T any](in []T) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

func toStringSlice(v any) ([]string, error) {
	raw, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected list of strings, got %T", v)
	}
	out := make([]string, len(raw))
	for i, e := range raw {
		s, ok := e.(string)
		if !ok {
			return nil, fmt.Errorf("expected string at index %d, got %T", i, e)
		}
		out[i] = s
	}
	return out, nil
}

func toInt64Slice(v any) ([]int64, error) {
	raw, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected list of integers, got %T", v)
	}
	out := make([]int64, len(raw))
	for i, e := range raw {
		out[i] = toInt64(e)
	}
	return out, nil
}

func toDict(v any) (Dict, error) {
	if v == nil {
		return nil, nil
	}
	raw, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected dict, got %T", v)
	}
	return Dict(raw), nil
}

func toInt64(v any) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case int:
		return int64(x)
	default:
		return 0
	}
}

func toFloat64(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int64:
		return float64(x)
	default:
		return 0
	}
}

package rpc

import (
	"encoding/json"
	"fmt"
	"math"

	"ddp-dispatch/internal/domain"

	"google.golang.org/protobuf/types/known/structpb"
)

// InvocationToProto encodes an invocation as a Struct. Args and kwargs must
// be JSON-like values (nil, bool, numbers, strings, slices and string-keyed maps).
func InvocationToProto(inv domain.Invocation) (*structpb.Struct, error) {
	args := inv.Args
	if args == nil {
		args = []any{}
	}
	kwargs := inv.Kwargs
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	s, err := structpb.NewStruct(map[string]any{
		"run_id":      inv.RunID,
		"entrypoint":  inv.Entrypoint,
		"master_addr": inv.MasterAddr,
		"master_port": inv.MasterPort,
		"rank":        inv.Rank,
		"world_size":  inv.WorldSize,
		"args":        args,
		"kwargs":      kwargs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode invocation: %w", err)
	}
	return s, nil
}

// InvocationFromProto decodes a Struct produced by InvocationToProto.
// Numbers inside args and kwargs come back as float64.
func InvocationFromProto(s *structpb.Struct) (domain.Invocation, error) {
	var inv domain.Invocation
	if s == nil {
		return inv, fmt.Errorf("empty invocation")
	}
	f := s.GetFields()

	inv.RunID = f["run_id"].GetStringValue()
	inv.Entrypoint = f["entrypoint"].GetStringValue()
	inv.MasterAddr = f["master_addr"].GetStringValue()

	var err error
	if inv.MasterPort, err = intField(f, "master_port"); err != nil {
		return inv, err
	}
	if inv.Rank, err = intField(f, "rank"); err != nil {
		return inv, err
	}
	if inv.WorldSize, err = intField(f, "world_size"); err != nil {
		return inv, err
	}
	if l := f["args"].GetListValue(); l != nil {
		inv.Args = l.AsSlice()
	}
	if kw := f["kwargs"].GetStructValue(); kw != nil {
		inv.Kwargs = kw.AsMap()
	}
	return inv, nil
}

func intField(f map[string]*structpb.Value, name string) (int, error) {
	v, ok := f[name]
	if !ok {
		return 0, fmt.Errorf("missing field %s", name)
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("field %s is not a number", name)
	}
	if n.NumberValue != math.Trunc(n.NumberValue) {
		return 0, fmt.Errorf("field %s is not an integer: %v", name, n.NumberValue)
	}
	if math.Abs(n.NumberValue) > math.MaxInt32 {
		return 0, fmt.Errorf("field %s is out of range: %v", name, n.NumberValue)
	}
	return int(n.NumberValue), nil
}

// ResultToProto encodes a training function's result. Values structpb does
// not know (typed slices, structs) are encoded through their JSON form.
func ResultToProto(result any) (*structpb.Value, error) {
	if v, err := structpb.NewValue(result); err == nil {
		return v, nil
	}
	b, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result of type %T: %w", result, err)
	}
	var generic any
	if err := json.Unmarshal(b, &generic); err != nil {
		return nil, fmt.Errorf("failed to encode result of type %T: %w", result, err)
	}
	return structpb.NewValue(generic)
}

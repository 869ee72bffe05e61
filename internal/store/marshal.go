package store

import (
	"fmt"
	"strconv"

	"github.com/roach88/pnftm/internal/ir"
)

// marshalObject converts an IRObject to canonical JSON TEXT for storage.
func marshalObject(obj ir.IRObject) (string, error) {
	if obj == nil {
		obj = ir.IRObject{}
	}
	data, err := ir.MarshalCanonical(obj)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// unmarshalObject parses canonical JSON TEXT. Large integers survive via
// json.Number inside ir.UnmarshalIRValue.
func unmarshalObject(data string) (ir.IRObject, error) {
	if data == "" || data == "{}" {
		return ir.IRObject{}, nil
	}
	var obj ir.IRObject
	if err := obj.UnmarshalJSON([]byte(data)); err != nil {
		return nil, err
	}
	return obj, nil
}

// marshalEvents stores events as a canonical JSON array of
// {"name", "args"} objects.
func marshalEvents(events []ir.Event) (string, error) {
	arr := make(ir.IRArray, len(events))
	for i, ev := range events {
		args := ev.Args
		if args == nil {
			args = ir.IRObject{}
		}
		arr[i] = ir.IRObject{"name": ir.IRString(ev.Name), "args": args}
	}
	data, err := ir.MarshalCanonical(arr)
	if err != nil {
		return "", fmt.Errorf("marshal events: %w", err)
	}
	return string(data), nil
}

func unmarshalEvents(data string) ([]ir.Event, error) {
	v, err := ir.UnmarshalIRValue([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal events: %w", err)
	}
	arr, ok := v.(ir.IRArray)
	if !ok {
		return nil, fmt.Errorf("unmarshal events: expected array, got %T", v)
	}
	events := make([]ir.Event, 0, len(arr))
	for i, elem := range arr {
		obj, ok := elem.(ir.IRObject)
		if !ok {
			return nil, fmt.Errorf("unmarshal events: [%d] is %T", i, elem)
		}
		name, _ := obj["name"].(ir.IRString)
		args, _ := obj["args"].(ir.IRObject)
		if args == nil {
			args = ir.IRObject{}
		}
		events = append(events, ir.Event{Name: string(name), Args: args})
	}
	return events, nil
}

func formatAmount(a ir.Amount) string {
	return strconv.FormatUint(uint64(a), 10)
}

func parseAmount(s string) (ir.Amount, error) {
	u, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return ir.Amount(u), nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// blob keeps an empty handle out of NULL territory.
func blob(h ir.Handle) []byte {
	if h == nil {
		return []byte{}
	}
	return h
}

package service

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mmynk/splitwiser-pay/internal/calculator"
)

// stringField returns the string value of key, or "" if absent.
func stringField(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

// decimalField reads key as a decimal. Both JSON strings ("12.50") and
// numbers are accepted; strings are preferred because they keep precision.
func decimalField(s *structpb.Struct, key string) (decimal.Decimal, error) {
	v, ok := s.GetFields()[key]
	if !ok {
		return decimal.Zero, fmt.Errorf("%s is required", key)
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		d, err := decimal.NewFromString(k.StringValue)
		if err != nil {
			return decimal.Zero, fmt.Errorf("%s: %w", key, err)
		}
		return d, nil
	case *structpb.Value_NumberValue:
		return decimal.NewFromFloat(k.NumberValue), nil
	default:
		return decimal.Zero, fmt.Errorf("%s must be a number or numeric string", key)
	}
}

// stringList reads key as a list of strings.
func stringList(s *structpb.Struct, key string) []string {
	values := s.GetFields()[key].GetListValue().GetValues()
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, v.GetStringValue())
	}
	return out
}

// participant is one entry of CreateSplit's participants list. Entries may be
// plain IDs or {id, name} objects.
type participant struct {
	ID   string
	Name string
}

func participants(s *structpb.Struct) []participant {
	values := s.GetFields()["participants"].GetListValue().GetValues()
	out := make([]participant, 0, len(values))
	for _, v := range values {
		if obj := v.GetStructValue(); obj != nil {
			out = append(out, participant{ID: stringField(obj, "id"), Name: stringField(obj, "name")})
			continue
		}
		out = append(out, participant{ID: v.GetStringValue()})
	}
	return out
}

func items(s *structpb.Struct) ([]calculator.Item, error) {
	values := s.GetFields()["items"].GetListValue().GetValues()
	out := make([]calculator.Item, 0, len(values))
	for i, v := range values {
		obj := v.GetStructValue()
		if obj == nil {
			return nil, fmt.Errorf("items[%d] must be an object", i)
		}
		amount, err := decimalField(obj, "amount")
		if err != nil {
			return nil, fmt.Errorf("items[%d]: %w", i, err)
		}
		out = append(out, calculator.Item{
			Description: stringField(obj, "description"),
			Amount:      amount,
			AssignedTo:  stringList(obj, "participant_ids"),
		})
	}
	return out, nil
}

// toStruct converts any JSON-encodable value to a protobuf Struct.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode response: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return structpb.NewStruct(m)
}

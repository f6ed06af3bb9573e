package sierra

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

// Sierra enums are serialized externally tagged: {"Variant": payload}.
// The helpers below read and write that shape.

func decodeTagged(data []byte) (string, json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return "", nil, err
	}
	if len(obj) != 1 {
		return "", nil, fmt.Errorf("expected exactly one variant tag, got %d", len(obj))
	}
	for tag, payload := range obj {
		return tag, payload, nil
	}
	return "", nil, nil
}

func encodeTagged(tag string, payload any) ([]byte, error) {
	inner, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString(`{"`)
	buf.WriteString(tag)
	buf.WriteString(`":`)
	buf.Write(inner)
	buf.WriteString(`}`)
	return buf.Bytes(), nil
}

// parseBigValue accepts a JSON integer of any size or a decimal string.
func parseBigValue(raw json.RawMessage) (*big.Int, error) {
	text := strings.TrimSpace(string(raw))
	if strings.HasPrefix(text, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		text = s
	}
	v, ok := new(big.Int).SetString(text, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer value %q", text)
	}
	return v, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *GenericArg) UnmarshalJSON(data []byte) error {
	tag, payload, err := decodeTagged(data)
	if err != nil {
		return fmt.Errorf("generic arg: %w", err)
	}
	switch tag {
	case "Type":
		a.Kind = ArgType
		return json.Unmarshal(payload, &a.Type)
	case "UserType":
		a.Kind = ArgUserType
		return json.Unmarshal(payload, &a.UserType)
	case "Value":
		a.Kind = ArgValue
		v, err := parseBigValue(payload)
		if err != nil {
			return fmt.Errorf("generic arg: %w", err)
		}
		a.Value = v
		return nil
	case "Libfunc":
		a.Kind = ArgLibfunc
		return json.Unmarshal(payload, &a.Libfunc)
	case "UserFunc":
		a.Kind = ArgUserFunc
		return json.Unmarshal(payload, &a.UserFunc)
	default:
		return fmt.Errorf("generic arg: unknown variant %q", tag)
	}
}

// MarshalJSON implements json.Marshaler.
func (a GenericArg) MarshalJSON() ([]byte, error) {
	switch a.Kind {
	case ArgType:
		return encodeTagged("Type", a.Type)
	case ArgUserType:
		return encodeTagged("UserType", a.UserType)
	case ArgValue:
		if a.Value == nil {
			return nil, fmt.Errorf("generic arg: nil value")
		}
		return encodeTagged("Value", json.RawMessage(a.Value.String()))
	case ArgLibfunc:
		return encodeTagged("Libfunc", a.Libfunc)
	case ArgUserFunc:
		return encodeTagged("UserFunc", a.UserFunc)
	default:
		return nil, fmt.Errorf("generic arg: unknown kind %d", a.Kind)
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *BranchTarget) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != "Fallthrough" {
			return fmt.Errorf("branch target: unknown variant %q", s)
		}
		*t = Fallthrough
		return nil
	}
	tag, payload, err := decodeTagged(data)
	if err != nil {
		return fmt.Errorf("branch target: %w", err)
	}
	if tag != "Statement" {
		return fmt.Errorf("branch target: unknown variant %q", tag)
	}
	var idx StatementIdx
	if err := json.Unmarshal(payload, &idx); err != nil {
		return fmt.Errorf("branch target: %w", err)
	}
	*t = JumpTo(idx)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (t BranchTarget) MarshalJSON() ([]byte, error) {
	if t.Fallthrough {
		return []byte(`"Fallthrough"`), nil
	}
	return encodeTagged("Statement", int(t.Statement))
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Statement) UnmarshalJSON(data []byte) error {
	tag, payload, err := decodeTagged(data)
	if err != nil {
		return fmt.Errorf("statement: %w", err)
	}
	switch tag {
	case "Invocation":
		s.Kind = StatementInvocation
		return json.Unmarshal(payload, &s.Invocation)
	case "Return":
		s.Kind = StatementReturn
		return json.Unmarshal(payload, &s.Return)
	default:
		return fmt.Errorf("statement: unknown variant %q", tag)
	}
}

// MarshalJSON implements json.Marshaler.
func (s Statement) MarshalJSON() ([]byte, error) {
	if s.Kind == StatementReturn {
		vars := s.Return
		if vars == nil {
			vars = []VarID{}
		}
		return encodeTagged("Return", vars)
	}
	return encodeTagged("Invocation", s.Invocation)
}

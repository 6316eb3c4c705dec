package value

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// jsonEnvelope is the on-the-wire shape used to round-trip a Value through
// JSON without losing its Kind tag (a bare JSON number can't distinguish
// int from float, and JSON has no byte-string or URI type).
type jsonEnvelope struct {
	T string          `json:"t"`
	V json.RawMessage `json:"v,omitempty"`
}

// MarshalJSON implements json.Marshaler. This is the collaborator-facing
// encoding used for persistent-state snapshots (spec §6); the CoAP/CBOR
// wire codec itself is an external concern.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		if v.IsStop() {
			return json.Marshal(jsonEnvelope{T: "stop"})
		}
		return json.Marshal(jsonEnvelope{T: "null"})
	case KindBool:
		raw, _ := json.Marshal(v.b)
		return json.Marshal(jsonEnvelope{T: "bool", V: raw})
	case KindInt:
		raw, _ := json.Marshal(v.i)
		return json.Marshal(jsonEnvelope{T: "int", V: raw})
	case KindFloat:
		raw, _ := json.Marshal(v.f)
		return json.Marshal(jsonEnvelope{T: "float", V: raw})
	case KindText:
		raw, _ := json.Marshal(v.s)
		return json.Marshal(jsonEnvelope{T: "text", V: raw})
	case KindURI:
		raw, _ := json.Marshal(v.s)
		return json.Marshal(jsonEnvelope{T: "uri", V: raw})
	case KindBytes:
		raw, _ := json.Marshal(base64.StdEncoding.EncodeToString(v.bytes))
		return json.Marshal(jsonEnvelope{T: "bytes", V: raw})
	case KindArray:
		raw, err := json.Marshal(v.arr)
		if err != nil {
			return nil, err
		}
		return json.Marshal(jsonEnvelope{T: "array", V: raw})
	case KindMap:
		raw, err := json.Marshal(v.m)
		if err != nil {
			return nil, err
		}
		return json.Marshal(jsonEnvelope{T: "map", V: raw})
	default:
		return nil, fmt.Errorf("value: unknown kind %d", v.kind)
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	var env jsonEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	switch env.T {
	case "null", "":
		*v = Null()
	case "stop":
		*v = Stop()
	case "bool":
		var b bool
		if err := json.Unmarshal(env.V, &b); err != nil {
			return err
		}
		*v = Bool(b)
	case "int":
		var i int64
		if err := json.Unmarshal(env.V, &i); err != nil {
			return err
		}
		*v = Int(i)
	case "float":
		var f float64
		if err := json.Unmarshal(env.V, &f); err != nil {
			return err
		}
		*v = Float(f)
	case "text":
		var s string
		if err := json.Unmarshal(env.V, &s); err != nil {
			return err
		}
		*v = Text(s)
	case "uri":
		var s string
		if err := json.Unmarshal(env.V, &s); err != nil {
			return err
		}
		*v = URI(s)
	case "bytes":
		var s string
		if err := json.Unmarshal(env.V, &s); err != nil {
			return err
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return err
		}
		*v = Bytes(b)
	case "array":
		var arr []Value
		if err := json.Unmarshal(env.V, &arr); err != nil {
			return err
		}
		*v = Array(arr...)
	case "map":
		var m map[string]Value
		if err := json.Unmarshal(env.V, &m); err != nil {
			return err
		}
		*v = Map(m)
	default:
		return fmt.Errorf("value: unknown kind tag %q", env.T)
	}
	return nil
}

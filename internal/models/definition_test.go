package models

import (
	"encoding/json"
	"testing"
)

func TestParamKindValid(t *testing.T) {
	for _, k := range []ParamKind{KindString, KindInteger, KindFloat, KindBoolean, KindArray} {
		if !k.Valid() {
			t.Errorf("%q should be valid", k)
		}
	}
	for _, k := range []ParamKind{"", "int", "number", "STRING", "bytes"} {
		if k.Valid() {
			t.Errorf("%q should not be valid", k)
		}
	}
}

func TestParameterSpecJSON(t *testing.T) {
	in := `{"name":"region","kind":"string","required":false,"default":"EMEA","description":"sales region"}`
	var spec ParameterSpec
	if err := json.Unmarshal([]byte(in), &spec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if spec.Name != "region" || spec.Kind != KindString || spec.Required {
		t.Errorf("unexpected spec: %+v", spec)
	}
	if spec.Default != "EMEA" {
		t.Errorf("default: got %v", spec.Default)
	}
}

package id_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/xraph/formdispatch/id"
)

func TestNewDLQID(t *testing.T) {
	a, b := id.NewDLQID(), id.NewDLQID()
	if a.IsNil() || b.IsNil() {
		t.Fatal("generated id is nil")
	}
	if !strings.HasPrefix(a.String(), "dlq_") {
		t.Errorf("String() = %q, want dlq_ prefix", a)
	}
	if a == b {
		t.Errorf("two generated ids are equal: %s", a)
	}
}

func TestParseDLQID(t *testing.T) {
	valid := id.NewDLQID()
	suffix := strings.TrimPrefix(valid.String(), "dlq_")

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"round trip", valid.String(), false},
		{"empty", "", true},
		{"wrong prefix", "job_" + suffix, true},
		{"no prefix", suffix, true},
		{"garbage", "dlq_not-a-suffix", true},
		{"response id", id.Pack(1, 1).String(), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := id.ParseDLQID(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDLQID(%q) err = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != valid {
				t.Errorf("ParseDLQID = %s, want %s", got, valid)
			}
		})
	}
}

func TestDLQIDJSON(t *testing.T) {
	original := id.NewDLQID()

	data, err := json.Marshal(map[string]id.DLQID{"id": original})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if want := `{"id":"` + original.String() + `"}`; string(data) != want {
		t.Errorf("Marshal = %s, want %s", data, want)
	}

	var decoded struct {
		ID id.DLQID `json:"id"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.ID != original {
		t.Errorf("decoded %s, want %s", decoded.ID, original)
	}

	if err := json.Unmarshal([]byte(`{"id":"job_01h2xcejqtf2nbrexx3vqjhp41"}`), &decoded); err == nil {
		t.Error("expected prefix error")
	}
}

func TestDLQIDScanValue(t *testing.T) {
	original := id.NewDLQID()

	v, err := original.Value()
	if err != nil || v != original.String() {
		t.Fatalf("Value = %v, %v", v, err)
	}
	if v, _ := id.NilDLQ.Value(); v != nil {
		t.Errorf("NilDLQ.Value = %v, want nil", v)
	}

	tests := []struct {
		name    string
		src     any
		want    id.DLQID
		wantErr bool
	}{
		{"nil", nil, id.NilDLQ, false},
		{"string", original.String(), original, false},
		{"bytes", []byte(original.String()), original, false},
		{"empty", "", id.NilDLQ, false},
		{"int", int64(7), id.NilDLQ, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got id.DLQID
			err := got.Scan(tt.src)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Scan err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("Scan = %s, want %s", got, tt.want)
			}
		})
	}
}

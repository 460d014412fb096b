package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/xraph/formdispatch/id"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := idCmd()
	if args[0] == "config" {
		cmd = configCmd()
	}
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args[1:])
	err := cmd.Execute()
	return out.String(), err
}

func TestIDPack(t *testing.T) {
	out, err := run(t, "id", "pack", "3", "9")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := strings.TrimSpace(out), id.Pack(3, 9).String(); got != want {
		t.Errorf("pack = %q, want %q", got, want)
	}
}

func TestIDInspect(t *testing.T) {
	out, err := run(t, "id", "inspect", id.Pack(12, 345).String())
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"shard:    12", "sequence: 345"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	if _, err := run(t, "id", "inspect", "abc"); err == nil {
		t.Error("expected parse error")
	}
}

func TestPackArgs_Rejects(t *testing.T) {
	tests := []struct {
		name       string
		shard, seq string
	}{
		{"non numeric shard", "x", "1"},
		{"shard too large", "8192", "1"},
		{"sequence too large", "1", "1125899906842624"},
		{"negative sequence", "1", "-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := packArgs(tt.shard, tt.seq); err == nil {
				t.Error("expected error")
			}
		})
	}

	if _, err := packArgs("8192", "0"); !errors.Is(err, id.ErrShardOutOfRange) {
		t.Errorf("err = %v, want ErrShardOutOfRange", err)
	}
	if _, err := packArgs("1", "1125899906842624"); !errors.Is(err, id.ErrSequenceExhausted) {
		t.Errorf("err = %v, want ErrSequenceExhausted", err)
	}
}

func TestConfigPrint(t *testing.T) {
	t.Setenv("FORMDISPATCH_STORE", "memory")
	initConfig()

	out, err := run(t, "config", "print")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"store: memory", "addr: 0.0.0.0:3000"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

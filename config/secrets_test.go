package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestExpandEnvStrict(t *testing.T) {
	t.Setenv("TEST_MUSICOPS_USER", "rj")

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "plain", want: "plain"},
		{in: "${TEST_MUSICOPS_USER}@host", want: "rj@host"},
		{in: "$TEST_MUSICOPS_USER", want: "rj"},
		{in: "cost $$5", want: "cost $5"},
		{in: "${TEST_MUSICOPS_NOPE}", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ExpandEnvStrict(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrSecret) {
					t.Fatalf("ExpandEnvStrict() error = %v, want ErrSecret", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ExpandEnvStrict() = %q, %v; want %q", got, err, tt.want)
			}
		})
	}
}

func TestParseSecretRef(t *testing.T) {
	p, ref, ok := ParseSecretRef("secretref:file:/run/secrets/key")
	if !ok || p != "file" || ref != "/run/secrets/key" {
		t.Errorf("ParseSecretRef() = %q, %q, %v", p, ref, ok)
	}
	for _, bad := range []string{"plain", "secretref:", "secretref:env", "secretref::x"} {
		if _, _, ok := ParseSecretRef(bad); ok {
			t.Errorf("ParseSecretRef(%q) ok = true", bad)
		}
	}
}

func TestSecretResolver(t *testing.T) {
	dir := t.TempDir()
	keyFile := filepath.Join(dir, "key")
	if err := os.WriteFile(keyFile, []byte("from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TEST_MUSICOPS_TOKEN", "from-env")

	r := NewSecretResolver()
	ctx := context.Background()

	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "file", in: "secretref:file:" + keyFile, want: "from-file"},
		{name: "env", in: "secretref:env:TEST_MUSICOPS_TOKEN", want: "from-env"},
		{name: "inline", in: "Bearer secretref:env:TEST_MUSICOPS_TOKEN", want: "Bearer from-env"},
		{name: "unknown provider", in: "secretref:vault:x", wantErr: true},
		{name: "missing file", in: "secretref:file:" + filepath.Join(dir, "nope"), wantErr: true},
		{name: "unset env", in: "secretref:env:TEST_MUSICOPS_UNSET", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(ctx, tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrSecret) {
					t.Fatalf("Resolve() error = %v, want ErrSecret", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("Resolve() = %q, %v; want %q", got, err, tt.want)
			}
		})
	}

	all, err := r.ResolveAll(ctx, []string{"a", "secretref:env:TEST_MUSICOPS_TOKEN"})
	if err != nil || len(all) != 2 || all[1] != "from-env" {
		t.Errorf("ResolveAll() = %v, %v", all, err)
	}
}

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"gcalvault/internal/config"
)

func TestParseSelection(t *testing.T) {
	tests := []struct {
		name    string
		answer  string
		n       int
		want    []int
		wantErr bool
	}{
		{"empty", "", 3, nil, false},
		{"single", "2", 3, []int{1}, false},
		{"comma and spaces", "1, 3", 3, []int{0, 2}, false},
		{"duplicates dropped", "3,3,1", 3, []int{2, 0}, false},
		{"out of range", "4", 3, nil, true},
		{"zero", "0", 3, nil, true},
		{"not a number", "work", 3, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSelection(tt.answer, tt.n)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseSelection(%q) error = %v, wantErr %v", tt.answer, err, tt.wantErr)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseSelection(%q) = %v, want %v", tt.answer, got, tt.want)
			}
		})
	}
}

func TestWizard_Ask(t *testing.T) {
	var out bytes.Buffer
	w := newWizard(strings.NewReader("\nnew@example.com\ny\n"), &out)

	got, err := w.ask("Email", "old@example.com")
	if err != nil || got != "old@example.com" {
		t.Errorf("empty answer = %q, %v; want current value", got, err)
	}
	got, err = w.ask("Email", "old@example.com")
	if err != nil || got != "new@example.com" {
		t.Errorf("answer = %q, %v", got, err)
	}
	yes, err := w.confirm("Push?", false)
	if err != nil || !yes {
		t.Errorf("confirm = %v, %v; want true", yes, err)
	}
	if !strings.Contains(out.String(), "Email [old@example.com]: ") {
		t.Errorf("prompt output = %q", out.String())
	}

	// A non-terminal reader falls back to a plain line read.
	secret, err := newWizard(strings.NewReader("s3cret\n"), &out).secret("Secret")
	if err != nil || secret != "s3cret" {
		t.Errorf("secret = %q, %v", secret, err)
	}
}

func TestSplitList(t *testing.T) {
	if got := splitList(" reader, ,freeBusyReader "); !reflect.DeepEqual(got, []string{"reader", "freeBusyReader"}) {
		t.Errorf("splitList = %v", got)
	}
	if got := splitList(""); got == nil || len(got) != 0 {
		t.Errorf("splitList(\"\") = %#v, want empty slice", got)
	}
}

func TestWriteClientOverrides(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "conf")
	if err := writeClientOverrides(dir, "id-1", "secret-1"); err != nil {
		t.Fatalf("writeClientOverrides() error = %v", err)
	}

	cfg := config.NewConfig(t.TempDir(), "")
	cfg.ConfDir = dir
	id, secret, err := config.ResolveClientCredentials(cfg, "", "")
	if err != nil {
		t.Fatalf("ResolveClientCredentials() error = %v", err)
	}
	if id != "id-1" || secret != "secret-1" {
		t.Errorf("resolved %q/%q", id, secret)
	}

	info, err := os.Stat(filepath.Join(dir, config.ClientSecretFile))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("secret file mode = %v, want 0600", info.Mode().Perm())
	}
}

package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func TestDBInit(t *testing.T) {
	cfgPath := writeConfig(t)
	out, err := runCmd(t, "db", "init", "-c", cfgPath)
	if err != nil {
		t.Fatalf("db init: %v", err)
	}
	for _, want := range []string{"Migrated 9 tables", "Seeded 1 series, 2 archives, 1 builders", "initialized successfully"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	// Init is repeatable.
	if _, err := runCmd(t, "db", "init", "-c", cfgPath); err != nil {
		t.Fatalf("second db init: %v", err)
	}
	out, _ = runCmd(t, "builder", "list", "-c", cfgPath)
	if strings.Count(out, "b1") != 1 {
		t.Errorf("builder list after re-init:\n%s", out)
	}
}

func TestDBReset(t *testing.T) {
	cfgPath := initDB(t)
	if _, err := runCmd(t, "builder", "add", "extra", "--processor", "arm", "-c", cfgPath); err != nil {
		t.Fatalf("builder add: %v", err)
	}

	out, err := runCmd(t, "db", "reset", "-y", "-c", cfgPath)
	if err != nil {
		t.Fatalf("db reset: %v", err)
	}
	if !strings.Contains(out, "Dropped tables") || !strings.Contains(out, "reset successfully") {
		t.Errorf("unexpected output:\n%s", out)
	}

	out, _ = runCmd(t, "builder", "list", "-c", cfgPath)
	if strings.Contains(out, "extra") {
		t.Errorf("builder added before reset survived:\n%s", out)
	}
	if !strings.Contains(out, "b1") {
		t.Errorf("seeded builder missing after reset:\n%s", out)
	}
}

func TestDBReset_Aborted(t *testing.T) {
	cfgPath := initDB(t)

	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetIn(strings.NewReader("no\n"))
	cmd.SetArgs([]string{"db", "reset", "-c", cfgPath})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("db reset: %v", err)
	}
	if !strings.Contains(buf.String(), "Aborted.") {
		t.Errorf("expected Aborted, got:\n%s", buf.String())
	}
}

func TestConfirmReset(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"yes\n", true},
		{"  yes  \n", true},
		{"y\n", false},
		{"", false},
	}
	for _, tt := range tests {
		cmd := &cobra.Command{}
		cmd.SetOut(new(bytes.Buffer))
		cmd.SetIn(strings.NewReader(tt.input))
		if got := confirmReset(cmd, "by.db"); got != tt.want {
			t.Errorf("confirmReset(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

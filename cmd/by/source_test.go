package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSourcePublish(t *testing.T) {
	cfgPath := initDB(t)

	out, err := runCmd(t, "source", "publish", "hello", "2.10-1", "--archive", "primary", "--series", "noble", "-c", cfgPath)
	if err != nil {
		t.Fatalf("source publish: %v", err)
	}
	if !strings.Contains(out, "Published hello 2.10-1 to primary/noble") {
		t.Errorf("unexpected publish output:\n%s", out)
	}
	if !strings.Contains(out, "Queued build 1") {
		t.Errorf("expected a queued build:\n%s", out)
	}

	// Publishing the same version again has nothing to build.
	out, err = runCmd(t, "source", "publish", "hello", "2.10-1", "--archive", "primary", "--series", "noble", "-c", cfgPath)
	if err != nil {
		t.Fatalf("second publish: %v", err)
	}
	if !strings.Contains(out, "No builds queued.") {
		t.Errorf("expected no new builds:\n%s", out)
	}
}

func TestSourcePublish_UnknownTarget(t *testing.T) {
	cfgPath := initDB(t)
	tests := []struct {
		name string
		args []string
	}{
		{name: "archive", args: []string{"--archive", "ghost", "--series", "noble"}},
		{name: "series", args: []string{"--archive", "primary", "--series", "jammy"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"source", "publish", "hello", "1.0", "-c", cfgPath}, tt.args...)
			if _, err := runCmd(t, args...); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSourceSupersede(t *testing.T) {
	cfgPath := initDB(t)
	if _, err := runCmd(t, "source", "publish", "hello", "1.0", "--archive", "primary", "--series", "noble", "-c", cfgPath); err != nil {
		t.Fatalf("publish: %v", err)
	}

	out, err := runCmd(t, "source", "supersede", "1", "-c", cfgPath)
	if err != nil {
		t.Fatalf("supersede: %v", err)
	}
	if !strings.Contains(out, "Publication 1 superseded") {
		t.Errorf("unexpected output: %s", out)
	}

	if _, err := runCmd(t, "source", "supersede", "abc", "-c", cfgPath); err == nil {
		t.Error("expected error for invalid id")
	}
}

func writeDSC(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSourceVerify(t *testing.T) {
	valid := writeDSC(t, "hello_2.10-1.dsc", `Format: 3.0 (quilt)
Source: hello
Version: 2.10-1
Files:
 0123456789abcdef0123456789abcdef 725946 hello_2.10.orig.tar.gz
 fedcba9876543210fedcba9876543210 12688 hello_2.10-1.debian.tar.xz
`)
	out, err := runCmd(t, "source", "verify", valid)
	if err != nil {
		t.Fatalf("verify valid: %v\n%s", err, out)
	}
	if !strings.Contains(out, "hello 2.10-1: format 3.0 (quilt) OK (2 files)") {
		t.Errorf("unexpected output: %s", out)
	}

	invalid := writeDSC(t, "hello_2.10-1.dsc", `Format: 3.0 (native)
Source: hello
Version: 2.10-1
Files:
 0123456789abcdef0123456789abcdef 725946 hello_2.10.tar.xz
 fedcba9876543210fedcba9876543210 100 hello.patch
`)
	out, err = runCmd(t, "source", "verify", invalid)
	if err == nil {
		t.Fatal("expected error for invalid source package")
	}
	if !strings.Contains(err.Error(), "1 problems") {
		t.Errorf("error = %q, want problem count", err)
	}
	if !strings.Contains(out, "Unknown file: hello.patch") {
		t.Errorf("problem not printed:\n%s", out)
	}
}

func TestSourceVerify_MissingFile(t *testing.T) {
	_, err := runCmd(t, "source", "verify", filepath.Join(t.TempDir(), "nope.dsc"))
	if err == nil || !strings.Contains(err.Error(), "open") {
		t.Errorf("error = %v, want open error", err)
	}
}

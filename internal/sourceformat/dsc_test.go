package sourceformat

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const signedDSC = `-----BEGIN PGP SIGNED MESSAGE-----
Hash: SHA256

Format: 3.0 (quilt)
Source: hello
Binary: hello
Architecture: any
Version: 2.10-3
Checksums-Sha256:
 aaaa 725946 hello_2.10.orig.tar.gz
 bbbb 12688 hello_2.10-3.debian.tar.xz
Files:
 d41d8cd98f00b204e9800998ecf8427e 725946 hello_2.10.orig.tar.gz
 0cc175b9c0f1b6a831c399e269772661 12688 hello_2.10-3.debian.tar.xz

-----BEGIN PGP SIGNATURE-----

iQIzBAEBCAAdFiEE
-----END PGP SIGNATURE-----
`

func TestParseDSC_Signed(t *testing.T) {
	d, err := ParseDSC(strings.NewReader(signedDSC))
	if err != nil {
		t.Fatalf("ParseDSC: %v", err)
	}
	want := &DSC{
		Source:  "hello",
		Version: "2.10-3",
		Format:  Format3_0Quilt,
		Files:   []string{"hello_2.10.orig.tar.gz", "hello_2.10-3.debian.tar.xz"},
	}
	if diff := cmp.Diff(want, d); diff != "" {
		t.Errorf("ParseDSC() mismatch (-want +got):\n%s", diff)
	}
	if errs := CheckFiles("hello_2.10-3.dsc", d.Format, d.Files); len(errs) != 0 {
		t.Errorf("CheckFiles() = %v, want none", errs)
	}
}

func TestParseDSC_DefaultsFormat(t *testing.T) {
	in := "Source: old\nVersion: 1.0-1\nFiles:\n abc 10 old_1.0.orig.tar.gz\n def 20 old_1.0-1.diff.gz\n"
	d, err := ParseDSC(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ParseDSC: %v", err)
	}
	if d.Format != Format1_0 {
		t.Errorf("Format = %q, want 1.0", d.Format)
	}
	if len(d.Files) != 2 {
		t.Errorf("len(Files) = %d, want 2", len(d.Files))
	}
}

func TestParseDSC_Errors(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr string
	}{
		{name: "no files", in: "Source: x\nVersion: 1\n", wantErr: "lists no files"},
		{name: "no source", in: "Version: 1\nFiles:\n a 1 x.tar.gz\n", wantErr: "missing Source"},
		{name: "bad format", in: "Format: 3.0 (git)\nSource: x\n", wantErr: "unsupported format"},
		{name: "bad files entry", in: "Source: x\nFiles:\n a x.tar.gz\n", wantErr: "malformed Files entry"},
		{name: "leading continuation", in: " stray\nSource: x\n", wantErr: "continuation line"},
		{name: "no colon", in: "Source x\n", wantErr: "malformed line"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDSC(strings.NewReader(tt.in))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ParseDSC() error = %v, want to contain %q", err, tt.wantErr)
			}
		})
	}

	if _, err := ParseDSC(strings.NewReader("Source: x\n")); !errors.Is(err, ErrNoFiles) {
		t.Errorf("error = %v, want ErrNoFiles", err)
	}
}

package sourceformat

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestVerify(t *testing.T) {
	tests := []struct {
		name       string
		format     Format
		files      FileCounts
		components map[string]int
		bzip2, xz  int
		want       []string
	}{
		{
			name:   "1.0 orig and diff",
			format: Format1_0,
			files:  FileCounts{OrigTarball: 1, Diff: 1},
		},
		{
			name:   "1.0 native",
			format: Format1_0,
			files:  FileCounts{NativeTarball: 1},
		},
		{
			name:   "1.0 native with bzip2",
			format: Format1_0,
			files:  FileCounts{NativeTarball: 1},
			bzip2:  1,
			want:   []string{"is format 1.0 but uses bzip2 compression."},
		},
		{
			name:   "1.0 with xz",
			format: Format1_0,
			files:  FileCounts{OrigTarball: 1, Diff: 1},
			xz:     2,
			want:   []string{"is format 1.0 but uses xz compression."},
		},
		{
			name:   "1.0 orig without diff",
			format: Format1_0,
			files:  FileCounts{OrigTarball: 1},
			want:   []string{"must have exactly one tar.gz, or an orig.tar.gz and diff.gz"},
		},
		{
			name:       "1.0 with component tarball",
			format:     Format1_0,
			files:      FileCounts{OrigTarball: 1, Diff: 1},
			components: map[string]int{"foo": 1},
			want:       []string{"must have exactly one tar.gz, or an orig.tar.gz and diff.gz"},
		},
		{
			name:   "1.0 debian tarball and bzip2",
			format: Format1_0,
			files:  FileCounts{OrigTarball: 1, DebianTarball: 1},
			bzip2:  1,
			want: []string{
				"is format 1.0 but uses bzip2 compression.",
				"must have exactly one tar.gz, or an orig.tar.gz and diff.gz",
			},
		},
		{
			name:   "3.0 quilt",
			format: Format3_0Quilt,
			files:  FileCounts{OrigTarball: 1, DebianTarball: 1},
			bzip2:  1,
			xz:     1,
		},
		{
			name:       "3.0 quilt with components",
			format:     Format3_0Quilt,
			files:      FileCounts{OrigTarball: 1, DebianTarball: 1},
			components: map[string]int{"foo": 1, "bar": 1},
		},
		{
			name:       "3.0 quilt with duplicated component",
			format:     Format3_0Quilt,
			files:      FileCounts{OrigTarball: 1, DebianTarball: 1},
			components: map[string]int{"foo": 1, "bar": 2},
			want:       []string{"has more than one orig-bar.tar.*."},
		},
		{
			name:   "3.0 quilt with diff",
			format: Format3_0Quilt,
			files:  FileCounts{OrigTarball: 1, DebianTarball: 1, Diff: 1},
			want:   []string{"must have only an orig.tar.*, a debian.tar.*, and optionally orig-*.tar.*"},
		},
		{
			name:   "3.0 quilt native tarball",
			format: Format3_0Quilt,
			files:  FileCounts{NativeTarball: 1},
			want:   []string{"must have only an orig.tar.*, a debian.tar.*, and optionally orig-*.tar.*"},
		},
		{
			name:   "3.0 native with xz",
			format: Format3_0Native,
			files:  FileCounts{NativeTarball: 1},
			xz:     1,
		},
		{
			name:   "3.0 native with bzip2",
			format: Format3_0Native,
			files:  FileCounts{NativeTarball: 1},
			bzip2:  1,
		},
		{
			name:   "3.0 native with orig",
			format: Format3_0Native,
			files:  FileCounts{NativeTarball: 1, OrigTarball: 1},
			want:   []string{"must have only a tar.*."},
		},
		{
			name:       "3.0 native with component",
			format:     Format3_0Native,
			files:      FileCounts{NativeTarball: 1},
			components: map[string]int{"foo": 1},
			want:       []string{"must have only a tar.*."},
		},
		{
			name:   "3.0 native empty",
			format: Format3_0Native,
			want:   []string{"must have only a tar.*."},
		},
		{
			name:   "unknown format",
			format: Format("2.0"),
			files:  FileCounts{NativeTarball: 1},
			want:   []string{`unsupported format "2.0"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Verify(tt.format, tt.files, tt.components, tt.bzip2, tt.xz)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Verify() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestVerify_ComponentErrorsSorted(t *testing.T) {
	got := Verify(Format3_0Quilt, FileCounts{OrigTarball: 1, DebianTarball: 1},
		map[string]int{"zz": 3, "aa": 2, "mm": 1}, 0, 0)
	want := []string{"has more than one orig-aa.tar.*.", "has more than one orig-zz.tar.*."}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Verify() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{in: "", want: Format1_0},
		{in: "1.0", want: Format1_0},
		{in: " 3.0 (quilt) ", want: Format3_0Quilt},
		{in: "3.0 (native)", want: Format3_0Native},
		{in: "3.0 (git)", wantErr: true},
		{in: "2.0", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestClassifyFile(t *testing.T) {
	tests := []struct {
		name          string
		wantType      FileType
		wantComponent string
	}{
		{"hello_1.0-1.dsc", FileDSC, ""},
		{"hello_1.0-1.diff.gz", FileDiff, ""},
		{"hello_1.0.orig.tar.gz", FileOrigTarball, ""},
		{"hello_1.0.orig.tar.xz", FileOrigTarball, ""},
		{"hello_1.0.orig-docs.tar.bz2", FileComponentOrigTarball, "docs"},
		{"hello_1.0.orig-foo-bar.tar.gz", FileComponentOrigTarball, "foo-bar"},
		{"hello_1.0-1.debian.tar.xz", FileDebianTarball, ""},
		{"hello_1.0.tar.gz", FileNativeTarball, ""},
		{"hello_1.0.tar.bz2", FileNativeTarball, ""},
		{"hello_1.0.tar.zst", FileUnknown, ""},
		{"README", FileUnknown, ""},
	}
	for _, tt := range tests {
		ft, comp := ClassifyFile(tt.name)
		if ft != tt.wantType || comp != tt.wantComponent {
			t.Errorf("ClassifyFile(%q) = (%s, %q), want (%s, %q)", tt.name, ft, comp, tt.wantType, tt.wantComponent)
		}
	}
}

func TestCheckFiles(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		files  []string
		want   []string
	}{
		{
			name:   "valid quilt",
			format: Format3_0Quilt,
			files:  []string{"hello_1.0.orig.tar.gz", "hello_1.0.orig-docs.tar.xz", "hello_1.0-1.debian.tar.xz"},
		},
		{
			name:   "1.0 with bzip2 native",
			format: Format1_0,
			files:  []string{"hello_1.0.tar.bz2"},
			want:   []string{"hello_1.0-1.dsc: is format 1.0 but uses bzip2 compression."},
		},
		{
			name:   "unknown file is reported and skipped",
			format: Format3_0Native,
			files:  []string{"hello_1.0.tar.xz", "hello.patch"},
			want:   []string{"Unknown file: hello.patch"},
		},
		{
			name:   "duplicated component",
			format: Format3_0Quilt,
			files: []string{
				"hello_1.0.orig.tar.gz", "hello_1.0-1.debian.tar.xz",
				"hello_1.0.orig-docs.tar.gz", "hello_1.0.orig-docs.tar.xz",
			},
			want: []string{"hello_1.0-1.dsc: has more than one orig-docs.tar.*."},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CheckFiles("hello_1.0-1.dsc", tt.format, tt.files)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("CheckFiles() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

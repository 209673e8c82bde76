// Package sourceformat checks that the files of a Debian source package
// upload suit its declared source format.
package sourceformat

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Format is a Debian source package format.
type Format string

// Supported formats.
const (
	Format1_0       Format = "1.0"
	Format3_0Quilt  Format = "3.0 (quilt)"
	Format3_0Native Format = "3.0 (native)"
)

// ParseFormat parses the Format field of a .dsc. A missing field means 1.0.
func ParseFormat(s string) (Format, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Format1_0, nil
	}
	switch f := Format(s); f {
	case Format1_0, Format3_0Quilt, Format3_0Native:
		return f, nil
	}
	return "", fmt.Errorf("sourceformat: unsupported format %q", s)
}

// FileType is the role a file plays in a source package.
type FileType int

// File types.
const (
	FileUnknown FileType = iota
	FileDSC
	FileNativeTarball
	FileOrigTarball
	FileComponentOrigTarball
	FileDebianTarball
	FileDiff
)

func (t FileType) String() string {
	switch t {
	case FileDSC:
		return "dsc"
	case FileNativeTarball:
		return "native tarball"
	case FileOrigTarball:
		return "orig tarball"
	case FileComponentOrigTarball:
		return "component orig tarball"
	case FileDebianTarball:
		return "debian tarball"
	case FileDiff:
		return "diff"
	}
	return "unknown"
}

// FileCounts counts the non-component files of an upload by type.
type FileCounts struct {
	NativeTarball int
	OrigTarball   int
	DebianTarball int
	Diff          int
}

var (
	reComponentOrig = regexp.MustCompile(`\.orig-([a-z0-9][a-z0-9-]*)\.tar\.(gz|bz2|xz)$`)
	reOrig          = regexp.MustCompile(`\.orig\.tar\.(gz|bz2|xz)$`)
	reDebian        = regexp.MustCompile(`\.debian\.tar\.(gz|bz2|xz)$`)
	reNative        = regexp.MustCompile(`\.tar\.(gz|bz2|xz)$`)
)

// ClassifyFile returns the type of a source package file from its name.
// For component orig tarballs it also returns the component name.
func ClassifyFile(name string) (FileType, string) {
	switch {
	case strings.HasSuffix(name, ".dsc"):
		return FileDSC, ""
	case strings.HasSuffix(name, ".diff.gz"):
		return FileDiff, ""
	}
	if m := reComponentOrig.FindStringSubmatch(name); m != nil {
		return FileComponentOrigTarball, m[1]
	}
	switch {
	case reOrig.MatchString(name):
		return FileOrigTarball, ""
	case reDebian.MatchString(name):
		return FileDebianTarball, ""
	case reNative.MatchString(name):
		return FileNativeTarball, ""
	}
	return FileUnknown, ""
}

// Verify checks file counts against the rules for format. It returns one
// message per problem; an empty result means the upload is well formed.
func Verify(format Format, files FileCounts, components map[string]int, bzip2Count, xzCount int) []string {
	switch format {
	case Format1_0:
		return verify1_0(files, components, bzip2Count, xzCount)
	case Format3_0Native:
		return verify3_0Native(files, components)
	case Format3_0Quilt:
		return verify3_0Quilt(files, components)
	}
	return []string{fmt.Sprintf("unsupported format %q", string(format))}
}

// 1.0 is either native (one tar.gz) or an orig.tar.gz plus a diff.gz, and
// gzip only.
func verify1_0(files FileCounts, components map[string]int, bzip2Count, xzCount int) []string {
	var errs []string
	if bzip2Count > 0 {
		errs = append(errs, "is format 1.0 but uses bzip2 compression.")
	}
	if xzCount > 0 {
		errs = append(errs, "is format 1.0 but uses xz compression.")
	}
	native := FileCounts{NativeTarball: 1}
	split := FileCounts{OrigTarball: 1, Diff: 1}
	if (files != native && files != split) || len(components) > 0 {
		errs = append(errs, "must have exactly one tar.gz, or an orig.tar.gz and diff.gz")
	}
	return errs
}

func verify3_0Native(files FileCounts, components map[string]int) []string {
	if files != (FileCounts{NativeTarball: 1}) || len(components) > 0 {
		return []string{"must have only a tar.*."}
	}
	return nil
}

func verify3_0Quilt(files FileCounts, components map[string]int) []string {
	var errs []string
	if files != (FileCounts{OrigTarball: 1, DebianTarball: 1}) {
		errs = append(errs, "must have only an orig.tar.*, a debian.tar.*, and optionally orig-*.tar.*")
	}
	names := make([]string, 0, len(components))
	for name := range components {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if components[name] > 1 {
			errs = append(errs, fmt.Sprintf("has more than one orig-%s.tar.*.", name))
		}
	}
	return errs
}

// CheckFiles classifies the files listed by a .dsc, counts them and
// verifies the counts against format. Messages are prefixed with dscName.
func CheckFiles(dscName string, format Format, filenames []string) []string {
	var (
		errs       []string
		files      FileCounts
		components = make(map[string]int)
		bzip2      int
		xz         int
	)

	for _, name := range filenames {
		ft, component := ClassifyFile(name)
		switch ft {
		case FileUnknown:
			errs = append(errs, "Unknown file: "+name)
			continue
		case FileDSC:
			continue
		case FileNativeTarball:
			files.NativeTarball++
		case FileOrigTarball:
			files.OrigTarball++
		case FileDebianTarball:
			files.DebianTarball++
		case FileDiff:
			files.Diff++
		case FileComponentOrigTarball:
			components[component]++
		}

		switch {
		case strings.HasSuffix(name, ".bz2"):
			bzip2++
		case strings.HasSuffix(name, ".xz"):
			xz++
		}
	}

	for _, msg := range Verify(format, files, components, bzip2, xz) {
		errs = append(errs, dscName+": "+msg)
	}
	return errs
}

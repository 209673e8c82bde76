package sourceformat

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// DSC holds the fields of a .dsc needed to verify an upload.
type DSC struct {
	Source  string
	Version string
	Format  Format
	Files   []string
}

// ErrNoFiles is returned when a .dsc lists no files.
var ErrNoFiles = errors.New("sourceformat: dsc lists no files")

// ParseDSC reads a .dsc control file. A clearsigned wrapper is skipped.
// Only the first paragraph is read.
func ParseDSC(r io.Reader) (*DSC, error) {
	fields := make(map[string]string)
	var (
		current  string
		inHeader bool
		started  bool
	)

	sc := bufio.NewScanner(r)
scan:
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")

		switch {
		case line == "-----BEGIN PGP SIGNED MESSAGE-----":
			inHeader = true
			continue
		case strings.HasPrefix(line, "-----BEGIN PGP SIGNATURE-----"):
			break scan
		}
		if inHeader {
			// Armor headers ("Hash: SHA256") end at the first blank line.
			if line == "" {
				inHeader = false
			}
			continue
		}

		if strings.TrimSpace(line) == "" {
			if started {
				break scan
			}
			continue
		}

		if line[0] == ' ' || line[0] == '\t' {
			if current == "" {
				return nil, fmt.Errorf("sourceformat: parse dsc: continuation line before any field")
			}
			fields[current] += "\n" + strings.TrimSpace(line)
			continue
		}

		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("sourceformat: parse dsc: malformed line %q", line)
		}
		current = strings.ToLower(strings.TrimSpace(name))
		fields[current] = strings.TrimSpace(value)
		started = true
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("sourceformat: parse dsc: %w", err)
	}

	format, err := ParseFormat(fields["format"])
	if err != nil {
		return nil, err
	}
	d := &DSC{
		Source:  fields["source"],
		Version: fields["version"],
		Format:  format,
	}
	if d.Source == "" {
		return nil, fmt.Errorf("sourceformat: parse dsc: missing Source field")
	}

	// Each Files line is "<md5> <size> <name>".
	for _, line := range strings.Split(fields["files"], "\n") {
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		if len(parts) != 3 {
			return nil, fmt.Errorf("sourceformat: parse dsc: malformed Files entry %q", line)
		}
		d.Files = append(d.Files, parts[2])
	}
	if len(d.Files) == 0 {
		return nil, ErrNoFiles
	}
	return d, nil
}

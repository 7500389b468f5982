package volume

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// procMountReader parses the kernel mount table. Fields are
// space-separated with octal escapes for whitespace in paths.
type procMountReader struct {
	path string
}

func (r procMountReader) Mounts() ([]Mount, error) {
	file, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("open mount table: %w", err)
	}
	defer file.Close()

	var mounts []Mount
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		mounts = append(mounts, Mount{
			Device: unescapeMountField(fields[0]),
			Path:   unescapeMountField(fields[1]),
			FSType: fields[2],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read mount table: %w", err)
	}
	return mounts, nil
}

// unescapeMountField decodes the \040-style octal escapes the kernel uses for
// spaces, tabs, newlines, and backslashes in mount paths.
func unescapeMountField(field string) string {
	if !strings.Contains(field, `\`) {
		return field
	}
	var b strings.Builder
	b.Grow(len(field))
	for i := 0; i < len(field); i++ {
		if field[i] == '\\' && i+3 < len(field) {
			if code, err := strconv.ParseUint(field[i+1:i+4], 8, 8); err == nil {
				b.WriteByte(byte(code))
				i += 3
				continue
			}
		}
		b.WriteByte(field[i])
	}
	return b.String()
}

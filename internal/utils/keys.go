package utils

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Local primary key formats.
const (
	KeyFormatInt  = "int"
	KeyFormatUUID = "uuid"
)

// NormalizeLocalID validates a local primary key against format and returns
// its canonical string form. Integer keys lose leading zeros, UUIDs are
// lower-cased and hyphenated.
func NormalizeLocalID(format, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("local id is empty")
	}
	switch format {
	case KeyFormatUUID:
		parsed, err := uuid.Parse(id)
		if err != nil {
			return "", fmt.Errorf("local id %q is not a uuid: %w", id, err)
		}
		return parsed.String(), nil
	case KeyFormatInt, "":
		n, err := strconv.ParseUint(id, 10, 64)
		if err != nil {
			return "", fmt.Errorf("local id %q is not an unsigned integer: %w", id, err)
		}
		return strconv.FormatUint(n, 10), nil
	default:
		return "", fmt.Errorf("unknown primary key format %q", format)
	}
}

// ValidKeyFormat reports whether format is a supported primary key format.
func ValidKeyFormat(format string) bool {
	return format == KeyFormatInt || format == KeyFormatUUID
}

package parse

import (
	"fmt"
	"regexp"
	"strings"
)

const maxEquipmentIDLen = 64

var (
	separatorRe   = regexp.MustCompile(`[\s#/]+`)
	equipmentIDRe = regexp.MustCompile(`^[A-Z0-9][A-Z0-9_.-]*$`)
)

// EquipmentID normalises a user-supplied equipment identifier. Surrounding
// space is trimmed, inner runs of space, '#' or '/' become a single '-', and
// letters are upper-cased, so " m 1 " and "M-1" name the same unit.
func EquipmentID(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	s = separatorRe.ReplaceAllString(s, "-")
	s = strings.ToUpper(s)

	if s == "" {
		return "", fmt.Errorf("equipment id is empty")
	}
	if len(s) > maxEquipmentIDLen {
		return "", fmt.Errorf("equipment id %q is longer than %d characters", raw, maxEquipmentIDLen)
	}
	if !equipmentIDRe.MatchString(s) {
		return "", fmt.Errorf("equipment id %q contains unsupported characters", raw)
	}
	return s, nil
}

// EquipmentIDs normalises every id and drops duplicates, keeping the first
// occurrence.
func EquipmentIDs(raw []string) ([]string, error) {
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		id, err := EquipmentID(r)
		if err != nil {
			return nil, err
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out, nil
}

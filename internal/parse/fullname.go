package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var fullNameRe = regexp.MustCompile(`^([A-Za-z]+\d*)[-\s](\d+)$`)

// ParsedFullName holds the structured data parsed from a classroom full name.
type ParsedFullName struct {
	Block  string
	Floor  int
	Number int
}

// ParseFullName extracts block, floor, and room number from a classroom full
// name such as "A-101" or "B2 305". The floor is the hundreds digit of the
// room number; "A-12" is floor 0, room 12.
func ParseFullName(raw string) (ParsedFullName, error) {
	s := strings.TrimSpace(raw)

	m := fullNameRe.FindStringSubmatch(s)
	if m == nil {
		return ParsedFullName{}, fmt.Errorf("unable to parse classroom full name: %q", raw)
	}

	number, err := strconv.Atoi(m[2])
	if err != nil {
		return ParsedFullName{}, fmt.Errorf("unable to parse room number in %q: %w", raw, err)
	}

	return ParsedFullName{
		Block:  strings.ToUpper(m[1]),
		Floor:  number / 100,
		Number: number,
	}, nil
}

package parser

import (
	"strings"
	"unicode/utf8"
)

// StripExtraneousLines keeps only the lines whose length equals the modal line length.
// With keepHeader set, a line directly above a data row is also kept when both carry the
// same number of commas.
func StripExtraneousLines(text string, keepHeader bool) string {
	lines := strings.Split(text, "\n")
	rowLength := modalLength(lines)

	kept := make([]string, 0, len(lines))
	for i, line := range lines {
		if lineLength(line) == rowLength {
			kept = append(kept, line)
			continue
		}

		if keepHeader && i < len(lines)-1 && lineLength(lines[i+1]) == rowLength {
			if strings.Count(line, ",") == strings.Count(lines[i+1], ",") {
				kept = append(kept, line)
			}
		}
	}

	return strings.Join(kept, "\n")
}

// modalLength returns the most frequent line length. Ties go to the longest length,
// since note lines are shorter than padded data rows.
func modalLength(lines []string) int {
	counts := make(map[int]int, 8)
	for _, line := range lines {
		counts[lineLength(line)]++
	}

	mode, best := 0, 0
	for length, count := range counts {
		if count > best || (count == best && length > mode) {
			mode, best = length, count
		}
	}
	return mode
}

func lineLength(line string) int {
	return utf8.RuneCountInString(line)
}

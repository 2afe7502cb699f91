// Package plate enforces the regional plate grammar and resolves noisy OCR
// reads into one plate string by per-position voting.
package plate

import (
	"checkpoint-gate/internal/domain/gate"
	"checkpoint-gate/internal/utils"
)

// Plate grammar: R, two letters, three digits, one or two suffix letters.
const (
	LeadingLetter = 'R'
	ShortLength   = 7
	LongLength    = 8

	suffixStart   = 6
	defaultLetter = 'A'
	defaultDigit  = '0'
)

type charClass int

const (
	classFixed charClass = iota
	classLetter
	classDigit
	classNone
)

// digitToLetter corrects digits read where the grammar expects a letter.
var digitToLetter = map[rune]rune{
	'0': 'C',
	'1': 'I',
	'2': 'Z',
	'3': 'J',
	'4': 'A',
	'5': 'S',
	'6': 'G',
	'8': 'B',
}

// letterToDigit corrects letters read where the grammar expects a digit.
var letterToDigit = map[rune]rune{
	'O': '0',
	'I': '1',
	'Z': '2',
	'J': '3',
	'A': '4',
	'S': '5',
	'G': '6',
	'B': '8',
}

func classAt(i int) charClass {
	switch {
	case i == 0:
		return classFixed
	case i == 1, i == 2:
		return classLetter
	case i >= 3 && i <= 5:
		return classDigit
	case i >= suffixStart && i < LongLength:
		return classLetter
	default:
		return classNone
	}
}

func isLetter(r rune) bool { return r >= 'A' && r <= 'Z' }
func isDigit(r rune) bool { return r >= '0' && r <= '9' }

func toLetter(r rune) rune {
	if mapped, ok := digitToLetter[r]; ok {
		return mapped
	}
	if isLetter(r) {
		return r
	}
	return defaultLetter
}

func toDigit(r rune) rune {
	if mapped, ok := letterToDigit[r]; ok {
		return mapped
	}
	if isDigit(r) {
		return r
	}
	return defaultDigit
}

// Normalize repairs text toward the plate grammar. The result always has
// the same number of characters as text; characters past the longest
// grammar are copied unchanged.
func Normalize(text string) string {
	runes := []rune(text)
	for i, r := range runes {
		switch classAt(i) {
		case classFixed:
			runes[i] = LeadingLetter
		case classLetter:
			if i >= suffixStart && r == 'O' {
				runes[i] = 'C'
				continue
			}
			runes[i] = toLetter(r)
		case classDigit:
			runes[i] = toDigit(r)
		}
	}
	return string(runes)
}

// Complies reports whether text matches the 7 or 8 character grammar exactly.
func Complies(text string) bool {
	if len(text) != ShortLength && len(text) != LongLength {
		return false
	}
	for i := 0; i < len(text); i++ {
		r := rune(text[i])
		switch classAt(i) {
		case classFixed:
			if r != LeadingLetter {
				return false
			}
		case classLetter:
			if !isLetter(r) {
				return false
			}
		case classDigit:
			if !isDigit(r) {
				return false
			}
		}
	}
	return true
}

// SelectCandidate returns the first candidate of one detection whose cleaned
// text is at least minLength characters and normalizes to a compliant plate.
func SelectCandidate(candidates []gate.PlateCandidate, minLength int) (gate.NormalizedPlate, bool) {
	for _, c := range candidates {
		text := utils.CleanPlateText(c.Text)
		if len([]rune(text)) < minLength {
			continue
		}
		normalized := Normalize(text)
		if !Complies(normalized) {
			continue
		}
		return gate.NormalizedPlate{
			Plate:      normalized,
			Confidence: c.Confidence,
			FrameIndex: c.FrameIndex,
		}, true
	}
	return gate.NormalizedPlate{}, false
}

// Package phase implements the total ordering over game phase codes.
package phase

import (
	"fmt"
	"math"
	"strconv"
)

const (
	// Forming is the sentinel phase before the first concrete phase.
	Forming = "FORMING"
	// Completed is the sentinel phase after the last concrete phase.
	Completed = "COMPLETED"
)

const (
	// RankForming sorts before every concrete phase.
	RankForming int64 = 0
	// RankCompleted sorts after every concrete phase.
	RankCompleted int64 = math.MaxInt64
)

// Rank converts a short phase code into a totally ordered integer.
//
// Concrete codes are six characters, [season][year:4][step], where the
// season is one of S/F/W and the step one of M/R/A. The rank for a
// concrete phase is year*100 + season*10 + step, so phases sort by year,
// then season, then step. Malformed codes are rejected rather than
// silently coerced.
func Rank(code string) (int64, error) {
	switch code {
	case Forming:
		return RankForming, nil
	case Completed:
		return RankCompleted, nil
	}
	if len(code) != 6 {
		return 0, fmt.Errorf("phase code %q must be 6 characters", code)
	}

	var season int64
	switch code[0] {
	case 'S':
		season = 0
	case 'F':
		season = 1
	case 'W':
		season = 2
	default:
		return 0, fmt.Errorf("phase code %q has unknown season %q", code, code[0])
	}

	//1.- ParseInt tolerates sign prefixes, so check for four digits first.
	for i := 1; i < 5; i++ {
		if code[i] < '0' || code[i] > '9' {
			return 0, fmt.Errorf("phase code %q has non-digit year", code)
		}
	}
	year, err := strconv.ParseInt(code[1:5], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("phase code %q has unparsable year: %w", code, err)
	}

	var step int64
	switch code[5] {
	case 'M':
		step = 0
	case 'R':
		step = 1
	case 'A':
		step = 2
	default:
		return 0, fmt.Errorf("phase code %q has unknown step %q", code, code[5])
	}

	return year*100 + season*10 + step, nil
}

// MustRank ranks a phase code and panics on malformed input. Histories
// only ever hold validated codes, so a failure here is a programming
// error rather than a runtime condition.
func MustRank(code string) int64 {
	rank, err := Rank(code)
	if err != nil {
		panic(err)
	}
	return rank
}

// Valid reports whether the code is a sentinel or well-formed phase.
func Valid(code string) bool {
	_, err := Rank(code)
	return err == nil
}

// Before reports whether phase a sorts strictly before phase b.
func Before(a, b string) (bool, error) {
	ra, err := Rank(a)
	if err != nil {
		return false, err
	}
	rb, err := Rank(b)
	if err != nil {
		return false, err
	}
	return ra < rb, nil
}

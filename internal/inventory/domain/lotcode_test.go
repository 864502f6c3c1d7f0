package inventory

import (
	"testing"
	"time"
)

func TestSeqIndexToLetters(t *testing.T) {
	cases := map[int]string{
		-3:  "",
		0:   "",
		1:   "A",
		2:   "B",
		26:  "Z",
		27:  "AA",
		28:  "AB",
		52:  "AZ",
		53:  "BA",
		702: "ZZ",
		703: "AAA",
	}
	for n, want := range cases {
		if got := SeqIndexToLetters(n); got != want {
			t.Fatalf("SeqIndexToLetters(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestSeqIndexToLettersIsInjective(t *testing.T) {
	seen := make(map[string]int, 2000)
	for n := 1; n <= 2000; n++ {
		letters := SeqIndexToLetters(n)
		if prev, ok := seen[letters]; ok {
			t.Fatalf("letters %q produced by %d and %d", letters, prev, n)
		}
		seen[letters] = n
	}
}

func TestGenLotCode(t *testing.T) {
	day := time.Date(2025, time.November, 25, 0, 0, 0, 0, time.UTC)
	if got := GenLotCode("4T1", day, 1, 3400); got != "LOT25NOV254T1A3400" {
		t.Fatalf("unexpected code %s", got)
	}
	if got := GenLotCode("DT1", time.Date(2026, time.March, 4, 0, 0, 0, 0, time.UTC), 28, 1000); got != "LOT04MAR26DT1AB1000" {
		t.Fatalf("unexpected code %s", got)
	}
}

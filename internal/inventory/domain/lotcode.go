package inventory

import (
	"strconv"
	"strings"
	"time"
)

// SeqIndexToLetters renders n in bijective base-26 (1=A, 26=Z, 27=AA).
// Values below 1 yield an empty string.
func SeqIndexToLetters(n int) string {
	if n < 1 {
		return ""
	}
	var buf [16]byte
	i := len(buf)
	for n > 0 {
		n--
		i--
		buf[i] = byte('A' + n%26)
		n /= 26
	}
	return string(buf[i:])
}

// GenLotCode builds the display code "LOT" + DDMONYY + unit code + letters + liters,
// for example LOT25NOV254T1A3400.
func GenLotCode(unitCode string, loadDate time.Time, seqIndex int, loadedLiters int64) string {
	var b strings.Builder
	b.WriteString("LOT")
	b.WriteString(strings.ToUpper(loadDate.Format("02Jan06")))
	b.WriteString(unitCode)
	b.WriteString(SeqIndexToLetters(seqIndex))
	b.WriteString(strconv.FormatInt(loadedLiters, 10))
	return b.String()
}

// Package occ parses OCC option symbols such as TSLA250404P00200000:
// root (1-6 letters), expiry YYMMDD, right C or P, strike in 1/1000 dollars.
package occ

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrLength    = errors.New("ticker must be 16 to 21 characters (e.g. TSLA250404P00200000)")
	ErrBadDate   = errors.New("expiry date looks invalid")
	ErrBadStrike = errors.New("strike field must be numeric")
	ErrBadFlag   = errors.New("ticker must be ROOT + YYMMDD + C or P + 8-digit strike")
)

var pattern = regexp.MustCompile(`^([A-Z]{1,6})(\d{6})([CP])([A-Z0-9]{8})$`)

type Right string

const (
	Call Right = "C"
	Put  Right = "P"
)

type Ticker struct {
	Root   string
	Expiry time.Time // UTC midnight
	Right  Right
	Strike decimal.Decimal
}

// Parse validates s and splits it into its parts.
func Parse(s string) (Ticker, error) {
	if n := len(s); n < 16 || n > 21 {
		return Ticker{}, ErrLength
	}
	m := pattern.FindStringSubmatch(s)
	if m == nil {
		return Ticker{}, ErrBadFlag
	}

	expiry, err := time.Parse("20060102", "20"+m[2])
	if err != nil {
		return Ticker{}, ErrBadDate
	}

	milli, err := strconv.ParseInt(m[4], 10, 64)
	if err != nil {
		return Ticker{}, ErrBadStrike
	}

	return Ticker{
		Root:   m[1],
		Expiry: expiry,
		Right:  Right(m[3]),
		Strike: decimal.New(milli, -3),
	}, nil
}

// MonthCode is the gateway's contract month, e.g. JUN25.
func (t Ticker) MonthCode() string {
	return strings.ToUpper(t.Expiry.Format("Jan06"))
}

// MaturityDate is the expiry as YYYYMMDD.
func (t Ticker) MaturityDate() string {
	return t.Expiry.Format("20060102")
}

// PlainStrike renders the strike in dollars without trailing zeros: 180, 182.5.
func (t Ticker) PlainStrike() string {
	return t.Strike.String()
}

func (t Ticker) String() string {
	milli := t.Strike.Shift(3).IntPart()
	return t.Root + t.Expiry.Format("060102") + string(t.Right) + leftPad(strconv.FormatInt(milli, 10), 8)
}

func leftPad(s string, n int) string {
	if len(s) >= n {
		return s
	}
	return strings.Repeat("0", n-len(s)) + s
}

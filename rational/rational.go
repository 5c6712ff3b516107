// Package rational implements exact rational arithmetic for presentation
// timestamps and frame durations. A 30000/1001 fps stream has a frame
// duration of 1001e9/30000 ns, which is not representable in floating
// point; accumulating it as float64 drifts visibly over long streams, so
// timestamps are carried as reduced int64 fractions end to end.
package rational

import (
	"fmt"
	"strconv"
	"strings"
)

// Rational is an exact fraction Num/Den. The zero value is the invalid
// fraction 0/0; use New or Zero. Den is always positive after reduction.
type Rational struct {
	Num int64
	Den int64
}

// Zero is the rational number 0.
var Zero = Rational{Num: 0, Den: 1}

// New returns the reduced fraction num/den. den must be nonzero.
func New(num, den int64) Rational {
	if den == 0 {
		panic("rational: zero denominator")
	}
	if den < 0 {
		num, den = -num, -den
	}
	if num == 0 {
		return Zero
	}
	g := gcd(abs(num), den)
	return Rational{Num: num / g, Den: den / g}
}

func abs(a int64) int64 {
	if a < 0 {
		return -a
	}
	return a
}

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// IsZero reports whether r equals 0.
func (r Rational) IsZero() bool {
	return r.Num == 0
}

// Add returns r + o as a reduced fraction. The common denominator is built
// from the GCD of the two denominators to keep intermediate products small.
func (r Rational) Add(o Rational) Rational {
	if r.Num == 0 {
		return o
	}
	if o.Num == 0 {
		return r
	}
	g := gcd(r.Den, o.Den)
	// r.Den/g and o.Den/g are coprime.
	num := r.Num*(o.Den/g) + o.Num*(r.Den/g)
	den := r.Den / g * o.Den
	return New(num, den)
}

// MulInt returns r × n as a reduced fraction.
func (r Rational) MulInt(n int64) Rational {
	if n == 0 || r.Num == 0 {
		return Zero
	}
	g := gcd(abs(n), r.Den)
	return New(r.Num*(n/g), r.Den/g)
}

// Cmp compares r and o, returning -1, 0, or +1.
func (r Rational) Cmp(o Rational) int {
	// Denominators are positive, so cross-multiplication preserves order.
	a := r.Num * o.Den
	b := o.Num * r.Den
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Float64 returns a floating-point approximation of r. Diagnostic use only;
// timestamp math must stay in exact form.
func (r Rational) Float64() float64 {
	return float64(r.Num) / float64(r.Den)
}

// String formats r as "num/den".
func (r Rational) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

// Parse parses "num/den" or a bare integer "num" into a reduced Rational.
func Parse(s string) (Rational, error) {
	numStr, denStr, ok := strings.Cut(s, "/")
	if !ok {
		denStr = "1"
	}
	num, err := strconv.ParseInt(numStr, 10, 64)
	if err != nil {
		return Rational{}, fmt.Errorf("parse rational %q: %w", s, err)
	}
	den, err := strconv.ParseInt(denStr, 10, 64)
	if err != nil {
		return Rational{}, fmt.Errorf("parse rational %q: %w", s, err)
	}
	if den == 0 {
		return Rational{}, fmt.Errorf("parse rational %q: zero denominator", s)
	}
	return New(num, den), nil
}

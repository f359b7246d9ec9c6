package errors

import (
	"fmt"
	"time"
)

// DivisionPolicyWarning records a derived ratio that came out NaN or infinite
// because its denominator was zero. It is informational: the value is kept
// as computed and the operation that produced it still succeeds.
type DivisionPolicyWarning struct {
	SKU         string
	ProductCode string
	Date        time.Time
	Field       string
	Numerator   float64
	Denominator float64
}

func (w DivisionPolicyWarning) Error() string {
	return fmt.Sprintf("%s for %q on %s: %g / %g is not finite",
		w.Field, w.SKU, w.Date.Format("2006-01-02"), w.Numerator, w.Denominator)
}

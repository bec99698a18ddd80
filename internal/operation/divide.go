package operation

import "errors"

// ErrDivisionByZero is returned when the divisor is zero.
var ErrDivisionByZero = errors.New("division by zero")

func init() {
	register(Operation{
		Name:        "divide",
		Description: "integer division of the first operand by the second",
		Execute: func(a, b int) (int, error) {
			if b == 0 {
				return 0, ErrDivisionByZero
			}
			return a / b, nil
		},
	})
}

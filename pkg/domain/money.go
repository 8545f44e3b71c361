package domain

import "fmt"

// Cents is a money amount in integer US cents. All income figures move
// through the system as cents so comparisons like the one-dollar
// discrepancy tolerance stay exact.
type Cents int64

// Abs returns the absolute value.
func (c Cents) Abs() Cents {
	if c < 0 {
		return -c
	}
	return c
}

// String renders the amount as dollars for logs and messages.
func (c Cents) String() string {
	sign := ""
	v := c
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s$%d.%02d", sign, v/100, v%100)
}

// Max returns the larger of two amounts.
func Max(a, b Cents) Cents {
	if a > b {
		return a
	}
	return b
}

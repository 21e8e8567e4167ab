package engine

import "strconv"

/*
*
 */
type Operator interface {
	Less(l []byte, r []byte) bool
}

type TEXTOperator struct {
}

func (t *TEXTOperator) Less(l []byte, r []byte) bool {
	return string(l) < string(r)
}

var _ Operator = &TEXTOperator{}

// NUMERICOperator compares values as numbers. Values that do not parse
// fall back to text order.
type NUMERICOperator struct {
}

func (n *NUMERICOperator) Less(l []byte, r []byte) bool {
	return compareValues(l, r) < 0
}

var _ Operator = &NUMERICOperator{}

// compareValues orders NULL first, numbers numerically and everything else as text.
func compareValues(l, r []byte) int {
	switch {
	case l == nil && r == nil:
		return 0
	case l == nil:
		return -1
	case r == nil:
		return 1
	}
	lf, lerr := strconv.ParseFloat(string(l), 64)
	rf, rerr := strconv.ParseFloat(string(r), 64)
	if lerr == nil && rerr == nil {
		switch {
		case lf < rf:
			return -1
		case lf > rf:
			return 1
		}
		return 0
	}
	switch {
	case string(l) < string(r):
		return -1
	case string(l) > string(r):
		return 1
	}
	return 0
}

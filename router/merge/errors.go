package merge

import "errors"

var errNoRow = errors.New("merged result is exhausted")

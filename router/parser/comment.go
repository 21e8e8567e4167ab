package parser

import (
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

const (
	// CommentDataSource selects the data source for tables without a mapping.
	CommentDataSource = "ds"
	commentPrefix     = "dsproxy."
)

/*
key: value[, key1: value1...]
*/
func ParseComment(comm string) (map[string]string, error) {
	opts := make(map[string]string)

	for i := 0; i < len(comm); {
		if unicode.IsSpace(rune(comm[i])) {
			i++
			continue
		}

		j := i
		for ; j < len(comm) && comm[j] != ':' && !unicode.IsSpace(rune(comm[j])); j++ {
		}
		if j == len(comm) {
			return nil, errors.New("invalid comment format")
		}
		if j == i {
			return nil, errors.New("invalid comment format: empty option name")
		}
		name := comm[i:j]

		for ; j < len(comm) && unicode.IsSpace(rune(comm[j])); j++ {
		}
		if j == len(comm) || comm[j] != ':' {
			return nil, errors.Errorf("invalid comment format: expected colon after option %q", name)
		}
		j++

		for ; j < len(comm) && unicode.IsSpace(rune(comm[j])); j++ {
		}
		if j == len(comm) {
			return nil, errors.Errorf("invalid comment format: empty value of option %q", name)
		}

		valStart := j
		for ; j < len(comm) && !unicode.IsSpace(rune(comm[j])) && comm[j] != ','; j++ {
		}
		opts[strings.TrimPrefix(name, commentPrefix)] = comm[valStart:j]

		for ; j < len(comm) && unicode.IsSpace(rune(comm[j])); j++ {
		}
		if j < len(comm) && comm[j] != ',' {
			return nil, errors.New("invalid comment format: expected comma after not-last key-value pair")
		}
		i = j + 1
	}

	return opts, nil
}

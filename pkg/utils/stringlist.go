package utils

import "strings"

// StringList collects repeatable flag values, e.g. -etcd-endpoint given more
// than once.
type StringList []string

func (a *StringList) String() string {
	return strings.Join(*a, ",")
}

func (a *StringList) Set(value string) error {
	*a = append(*a, value)
	return nil
}

package transform

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Service uppercases text using fixed English casing rules. Using a fixed
// locale keeps the mapping stable regardless of the host locale (Turkish
// dotless-I being the classic trap).
type Service struct{}

func New() *Service {
	return &Service{}
}

// Upper returns s converted to uppercase. A cases.Caser carries internal
// state, so a fresh one is built per call to keep Upper safe for concurrent
// use.
func (s *Service) Upper(in string) string {
	return cases.Upper(language.English).String(in)
}

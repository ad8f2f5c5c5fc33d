package transform

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUpper(t *testing.T) {
	s := New()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"sentence", "Welcome to happy land!", "WELCOME TO HAPPY LAND!"},
		{"empty", "", ""},
		{"mixed", "MiXeD123!@#", "MIXED123!@#"},
		{"already upper", "ALREADY UPPER", "ALREADY UPPER"},
		{"unicode", "grüße aus berlin", "GRÜSSE AUS BERLIN"},
		{"dotless i stays english", "istanbul", "ISTANBUL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Upper(tt.input))
		})
	}
}

func TestUpperIsIdempotent(t *testing.T) {
	s := New()

	inputs := []string{
		"Welcome to happy land!",
		"",
		"MiXeD123!@#",
		"grüße aus berlin",
		"ñandú über ÆGIS",
		"日本語 and latin",
	}

	for _, in := range inputs {
		once := s.Upper(in)
		assert.Equal(t, once, s.Upper(once), "input %q", in)
	}
}

func TestUpperConcurrent(t *testing.T) {
	s := New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				assert.Equal(t, "HELLO WORLD", s.Upper("hello World"))
			}
		}()
	}
	wg.Wait()
}

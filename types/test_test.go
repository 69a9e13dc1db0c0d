package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTestPathEqual(t *testing.T) {
	base := NewTestPath("/suites/auth.suite", "Auth", "logs in")

	tests := []struct {
		name  string
		other TestPath
		equal bool
	}{
		{"identical", NewTestPath("/suites/auth.suite", "Auth", "logs in"), true},
		{"different file", NewTestPath("/suites/other.suite", "Auth", "logs in"), false},
		{"different segment", NewTestPath("/suites/auth.suite", "Auth", "logs out"), false},
		{"shorter path", NewTestPath("/suites/auth.suite", "Auth"), false},
		{"longer path", NewTestPath("/suites/auth.suite", "Auth", "logs in", "twice"), false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.equal, base.Equal(tc.other))
			assert.Equal(t, tc.equal, tc.other.Equal(base))
		})
	}
}

func TestTestPathNames(t *testing.T) {
	p := NewTestPath("/suites/auth.suite", "Auth", "sessions", "expires")
	assert.Equal(t, "expires", p.Name())
	assert.Equal(t, "Auth > sessions > expires", p.FullName())
	assert.Equal(t, "/suites/auth.suite::Auth/sessions/expires", p.Key())

	empty := NewTestPath("/suites/auth.suite")
	assert.Equal(t, "", empty.Name())
}

func TestTestPathKeyDistinguishesTests(t *testing.T) {
	a := NewTestPath("/s.suite", "a", "b")
	b := NewTestPath("/s.suite", "a", "c")
	assert.NotEqual(t, a.Key(), b.Key())
}

package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitCommand(t *testing.T) {
	cases := []struct {
		in   string
		name string
		args string
	}{
		{"/start", "/start", ""},
		{"/withdraw 200", "/withdraw", "200"},
		{"/bank First National Bank", "/bank", "First National Bank"},
		{"/approve 200 = 7 ", "/approve", "200 = 7"},
		{"  /balance  ", "/balance", ""},
	}
	for _, tc := range cases {
		name, args := splitCommand(tc.in)
		assert.Equal(t, tc.name, name, "input %q", tc.in)
		assert.Equal(t, tc.args, args, "input %q", tc.in)
	}
}

func TestApproveArgsPattern(t *testing.T) {
	m := approveArgsPattern.FindStringSubmatch("200 = 7")
	if assert.NotNil(t, m) {
		assert.Equal(t, "200", m[1])
		assert.Equal(t, "7", m[2])
	}

	m = approveArgsPattern.FindStringSubmatch("99.50=12")
	if assert.NotNil(t, m) {
		assert.Equal(t, "99.50", m[1])
		assert.Equal(t, "12", m[2])
	}

	assert.Nil(t, approveArgsPattern.FindStringSubmatch("= 7"))
	assert.Nil(t, approveArgsPattern.FindStringSubmatch("two hundred = 7"))
}

func TestRejectArgsPattern(t *testing.T) {
	m := rejectArgsPattern.FindStringSubmatch("7 = blurry screenshot")
	if assert.NotNil(t, m) {
		assert.Equal(t, "7", m[1])
		assert.Equal(t, "blurry screenshot", m[2])
	}

	assert.Nil(t, rejectArgsPattern.FindStringSubmatch("7"))
	assert.Nil(t, rejectArgsPattern.FindStringSubmatch("= no id"))
}

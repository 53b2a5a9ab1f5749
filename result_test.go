package leaseq

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResult_StringAndParse(t *testing.T) {
	require.Equal(t, "SUCCESS", ResultSuccess.String())
	require.Equal(t, "FAILURE", ResultFailure.String())

	for _, r := range AllResults {
		got, err := ParseResult(r.String())
		require.NoError(t, err, "parse valid result %q", r)
		require.Equal(t, r, got)
	}

	_, err := ParseResult("success")
	require.ErrorIs(t, err, ErrUnknownResult)
	_, err = ParseResult("")
	require.ErrorIs(t, err, ErrUnknownResult)
}

func TestOutcome_StringAndTerminal(t *testing.T) {
	cases := []struct {
		o        Outcome
		name     string
		terminal bool
	}{
		{OutcomeSuccess, "success", true},
		{OutcomePermanent, "permanent", true},
		{OutcomeYield, "yield", false},
		{OutcomeTransient, "transient", false},
		{Outcome(99), "unknown", false},
	}
	for _, c := range cases {
		require.Equal(t, c.name, c.o.String())
		require.Equal(t, c.terminal, c.o.Terminal(), c.name)
	}
}

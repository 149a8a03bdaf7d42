package frameref

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResolution(t *testing.T) {
	tests := []struct {
		name    string
		param   string
		pass    uint32
		want    Ref
		wantErr bool
	}{
		{"own input", "IN", 3, Ref{true, 3, 0}, false},
		{"own input dollar", "$IN", 2, Ref{true, 2, 0}, false},
		{"original source", "ORIG", 5, Ref{true, 0, 0}, false},

		{"prev plain", "PREV", 1, Ref{true, 0, 1}, false},
		{"prev 1", "PREV1", 1, Ref{true, 0, 2}, false},
		{"prev 3", "PREV3", 4, Ref{true, 0, 4}, false},
		{"prev 6", "PREV6", 1, Ref{true, 0, 7}, false},
		{"prev 0 rejected", "PREV0", 1, Ref{}, true},
		{"prev 7 rejected", "PREV7", 1, Ref{}, true},

		{"passprev plain from pass 1", "PASSPREV", 1, Ref{true, 0, 0}, false},
		{"passprev plain from pass 2", "PASSPREV", 2, Ref{true, 1, 0}, false},
		{"passprev 1 from pass 3", "PASSPREV1", 3, Ref{true, 1, 0}, false},
		{"passprev explicit 0 rejected", "PASSPREV0", 3, Ref{}, true},
		{"passprev from pass 0 rejected", "PASSPREV", 0, Ref{}, true},
		{"passprev reaching before pass 0", "PASSPREV2", 2, Ref{}, true},

		{"pass 1 from pass 2", "PASS1", 2, Ref{true, 1, 0}, false},
		{"pass without index rejected", "PASS", 2, Ref{}, true},
		{"pass 0 rejected", "PASS0", 2, Ref{}, true},
		{"pass 0 rejected from pass 0", "PASS0", 0, Ref{}, true},
		{"pass at current rejected", "PASS2", 2, Ref{}, true},
		{"pass beyond current rejected", "PASS3", 2, Ref{}, true},

		{"empty", "", 2, Ref{}, false},
		{"short non-ref", "AB", 2, Ref{}, false},
		{"unknown name", "phosphor_mask", 2, Ref{}, false},
		{"orig with suffix is not a ref", "ORIG1", 2, Ref{}, false},
		{"overflowing index is not a ref", "PASS99999999999", 2, Ref{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, err := Parse(tt.param, tt.pass)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "invalid reference from pass")
				assert.False(t, ref.Valid)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ref)
		})
	}
}

func TestPassPrevMatchesExplicitPass(t *testing.T) {
	// From pass 1, PASSPREV and an explicit PASS reference to pass 0 are the
	// same thing; PASS0 is never writable so the explicit spelling is ORIG.
	implicit, err := Parse("PASSPREV", 1)
	require.NoError(t, err)
	explicit, err := Parse("ORIG", 1)
	require.NoError(t, err)
	assert.Equal(t, explicit.PassIndex, implicit.PassIndex)
	assert.Equal(t, explicit.ElementIndex, implicit.ElementIndex)

	// From pass 2 the equivalent explicit reference is PASS1.
	implicit, err = Parse("PASSPREV", 2)
	require.NoError(t, err)
	explicit, err = Parse("PASS1", 2)
	require.NoError(t, err)
	assert.Equal(t, explicit, implicit)
}

func TestParseIsTotal(t *testing.T) {
	// Arbitrary garbage must never panic and always return a decided result.
	inputs := []string{"", "$", "$$IN", "PASSPREVPREV", "prev1", "Pass1", "IN2", "P", "PASS-1", "PREV01"}
	for _, in := range inputs {
		for pass := uint32(0); pass < 4; pass++ {
			ref, err := Parse(in, pass)
			if err == nil && ref.Valid {
				assert.LessOrEqual(t, ref.PassIndex, pass, "input %q pass %d", in, pass)
			}
		}
	}
}

package targets

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avolpe/scanflow/internal/errors"
)

func TestResolve(t *testing.T) {
	t.Run("single addresses preserve order", func(t *testing.T) {
		list, err := Resolve([]string{"10.0.0.2", "10.0.0.1", "192.168.1.5"})
		require.NoError(t, err)
		assert.Equal(t, []string{"10.0.0.2", "10.0.0.1", "192.168.1.5"}, list.Addresses())
	})

	t.Run("duplicates keep first occurrence", func(t *testing.T) {
		list, err := Resolve([]string{"10.0.0.1", "10.0.0.1", "10.0.0.2", "10.0.0.1"})
		require.NoError(t, err)
		assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, list.Addresses())
	})

	t.Run("mixed addresses and subnets", func(t *testing.T) {
		list, err := Resolve([]string{"10.0.0.1", "192.168.1.0/30"})
		require.NoError(t, err)
		assert.Equal(t, []string{"10.0.0.1", "192.168.1.1", "192.168.1.2"}, list.Addresses())
		assert.False(t, list[0].FromSubnet)
		assert.True(t, list[1].FromSubnet)
	})

	t.Run("address already covered by subnet is not duplicated", func(t *testing.T) {
		list, err := Resolve([]string{"192.168.1.0/30", "192.168.1.2"})
		require.NoError(t, err)
		assert.Equal(t, []string{"192.168.1.1", "192.168.1.2"}, list.Addresses())
	})

	t.Run("blank entries are skipped", func(t *testing.T) {
		list, err := Resolve([]string{"", "  ", "10.0.0.1"})
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("malformed address is batch fatal", func(t *testing.T) {
		_, err := Resolve([]string{"10.0.0.1", "999.1.1.1"})
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.CodeTargetInvalid))
		assert.True(t, errors.IsBatchFatal(err))
	})

	t.Run("ipv6 address is rejected", func(t *testing.T) {
		_, err := Resolve([]string{"::1"})
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.CodeTargetInvalid))
	})
}

func TestExpandCIDR(t *testing.T) {
	tests := []struct {
		name string
		cidr string
		want []string
	}{
		{"slash 30 yields two usable hosts", "192.168.1.0/30", []string{"192.168.1.1", "192.168.1.2"}},
		{"slash 31 yields both addresses", "10.0.0.0/31", []string{"10.0.0.0", "10.0.0.1"}},
		{"slash 32 yields the single address", "10.0.0.7/32", []string{"10.0.0.7"}},
		{"slash 29 excludes network and broadcast", "172.16.0.0/29",
			[]string{"172.16.0.1", "172.16.0.2", "172.16.0.3", "172.16.0.4", "172.16.0.5", "172.16.0.6"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandCIDR(tt.cidr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("non-aligned base address is masked", func(t *testing.T) {
		got, err := ExpandCIDR("192.168.1.9/30")
		require.NoError(t, err)
		assert.Equal(t, []string{"192.168.1.9", "192.168.1.10"}, got)
	})

	t.Run("slash 24 yields 254 hosts", func(t *testing.T) {
		got, err := ExpandCIDR("192.168.1.0/24")
		require.NoError(t, err)
		assert.Len(t, got, 254)
		assert.Equal(t, "192.168.1.1", got[0])
		assert.Equal(t, "192.168.1.254", got[253])
	})

	t.Run("oversized network is rejected", func(t *testing.T) {
		_, err := ExpandCIDR("10.0.0.0/8")
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.CodeTargetInvalid))
	})

	t.Run("garbage input is rejected", func(t *testing.T) {
		_, err := ExpandCIDR("not-a-subnet")
		require.Error(t, err)
	})
}

func TestReadList(t *testing.T) {
	input := strings.NewReader(`
# production segment
10.0.0.1
10.0.0.2

192.168.1.0/30
`)

	entries, err := ReadList(input)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2", "192.168.1.0/30"}, entries)
}

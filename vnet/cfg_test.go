package vnet

import (
	"testing"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestHWAddrText(t *testing.T) {
	var addr HWAddr
	require.NoError(t, addr.UnmarshalText([]byte("aa:aa:aa:aa:aa:aa")))
	require.Equal(t, hwA, addr.HardwareAddr)

	text, err := addr.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "aa:aa:aa:aa:aa:aa", string(text))

	require.Error(t, addr.UnmarshalText([]byte("not a mac")))
}

func TestPortConfigYaml(t *testing.T) {
	text := `
name: a
hwaddr: aa:aa:aa:aa:aa:aa
addr: 1.1.1.1
neighbours:
  - addr: 1.1.1.2
    lladdr: bb:bb:bb:bb:bb:bb
flows:
  - to: 1.1.1.2
    every: 250ms
    size: 64B
`

	var cfg PortConfig
	require.NoError(t, yaml.Unmarshal([]byte(text), &cfg))

	require.Equal(t, "a", cfg.Name)
	require.Equal(t, hwA, cfg.HWAddr.HardwareAddr)
	require.Equal(t, addrA, cfg.Addr)

	require.Len(t, cfg.Neighbours, 1)
	require.Equal(t, addrB, cfg.Neighbours[0].Addr)
	require.Equal(t, hwB, cfg.Neighbours[0].LinkAddr.HardwareAddr)

	require.Len(t, cfg.Flows, 1)
	require.Equal(t, addrB, cfg.Flows[0].To)
	require.Equal(t, 250*time.Millisecond, cfg.Flows[0].Every)
	require.Equal(t, 64*datasize.B, cfg.Flows[0].Size)
}

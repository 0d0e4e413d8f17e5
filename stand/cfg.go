package stand

import (
	"fmt"
	"net"
	"net/netip"
	"os"
	"time"

	"github.com/c2h5oh/datasize"
	"gopkg.in/yaml.v3"

	"github.com/ethane-platform/ethane/api"
	"github.com/ethane-platform/ethane/common/logging"
	"github.com/ethane-platform/ethane/link"
	"github.com/ethane-platform/ethane/vnet"
)

// Config is the top-level configuration of a stand.
type Config struct {
	// Logging configures the console logger.
	Logging logging.Config `yaml:"logging"`
	// API configures the inspection API server.
	API *api.Config `yaml:"api"`
	// Link configures every attached interface.
	Link *link.Config `yaml:"link"`
	// Segment configures the simulated segment and its hosts.
	Segment *vnet.Config `yaml:"segment"`
}

// DefaultConfig returns an empty-segment configuration with all defaults
// filled in.
func DefaultConfig() *Config {
	return &Config{
		Logging: logging.DefaultConfig(),
		API:     api.DefaultConfig(),
		Link:    link.DefaultConfig(),
		Segment: vnet.DefaultConfig(),
	}
}

// LoadConfig loads configuration from a YAML file at the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML configuration: %w", err)
	}

	return cfg, nil
}

// DemoConfig returns a built-in two-host stand: "a" pushes a small flow
// toward "b" once a second, resolving it on the way. It doubles as living
// documentation of the yaml shape.
func DemoConfig() *Config {
	cfg := DefaultConfig()
	cfg.Segment.Hosts = []vnet.PortConfig{
		{
			Name:   "a",
			HWAddr: mustHWAddr("aa:aa:aa:aa:aa:aa"),
			Addr:   netip.MustParseAddr("1.1.1.1"),
			Flows: []vnet.FlowConfig{
				{
					To:    netip.MustParseAddr("1.1.1.2"),
					Every: time.Second,
					Size:  64 * datasize.B,
				},
			},
		},
		{
			Name:   "b",
			HWAddr: mustHWAddr("bb:bb:bb:bb:bb:bb"),
			Addr:   netip.MustParseAddr("1.1.1.2"),
		},
	}
	return cfg
}

func mustHWAddr(text string) vnet.HWAddr {
	hw, err := net.ParseMAC(text)
	if err != nil {
		panic(err)
	}
	return vnet.HWAddr{HardwareAddr: hw}
}

package api

// Config is the configuration for the inspection API server.
type Config struct {
	// Addr is the address to listen on.
	Addr string `yaml:"addr"`
}

// DefaultConfig returns the API configuration used when none is given.
func DefaultConfig() *Config {
	return &Config{
		Addr: "127.0.0.1:9480",
	}
}

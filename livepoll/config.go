package livepoll

import "time"

// Config controls how the client connects to the poll hub.
type Config struct {
	URL              string // hub websocket endpoint, see HubURL
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration // 0 disables; push traffic is sparse and the server owns idle detection
	WriteTimeout     time.Duration
	CallTimeout      time.Duration // default deadline for correlated calls

	AutoReconnect     bool
	ReconnectInterval time.Duration // initial backoff delay, doubles per attempt
	MaxReconnectDelay time.Duration
	MaxReconnectTries int // 0 means unbounded
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout:  10 * time.Second,
		WriteTimeout:      10 * time.Second,
		CallTimeout:       DefaultCallTimeout,
		AutoReconnect:     true,
		ReconnectInterval: 2 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
	}
}

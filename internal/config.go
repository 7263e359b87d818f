package internal

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	LogLevel             string        `env:"LOG_LEVEL,default=INFO"`
	BadgerFilepath       string        `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath        string        `env:"BLUGE_FILEPATH"`
	HTTPHost             string        `env:"HTTP_HOST,default=127.0.0.1"`
	HTTPPort             int           `env:"HTTP_PORT,default=8080"`
	EchoPort             int           `env:"ECHO_PORT,default=8765"`
	EchoChannel          string        `env:"ECHO_CHANNEL,default=mini-chat-sync"`
	P2PEnabled           bool          `env:"P2P_ENABLED,default=true"`
	P2PListenAddrs       string        `env:"P2P_LISTEN_ADDRS,default=/ip4/0.0.0.0/tcp/0"`
	P2PBootstrapPeers    string        `env:"P2P_BOOTSTRAP_PEERS"`
	P2PMDNS              bool          `env:"P2P_MDNS,default=true"`
	P2PServiceTag        string        `env:"P2P_SERVICE_TAG,default=mini-chat"`
	P2PMaxMessageSize    int           `env:"P2P_MAX_MESSAGE_SIZE,default=1048576"`
	DiscoveryTimeout     time.Duration `env:"DISCOVERY_TIMEOUT,default=8s"`
	ConnectivityInterval time.Duration `env:"CONNECTIVITY_INTERVAL,default=1s"`
	PublishTimeout       time.Duration `env:"PUBLISH_TIMEOUT,default=5s"`
	PublishQueueSize     int           `env:"PUBLISH_QUEUE_SIZE,default=256"`
	EventBufferSize      int           `env:"EVENT_BUFFER_SIZE,default=1024"`
	SinkTimeout          time.Duration `env:"SINK_TIMEOUT,default=2s"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=1s"`
	MetricInterval       time.Duration `env:"METRIC_INTERVAL,default=10s"`
	CensoredWords        string        `env:"CENSORED_WORDS"`
	CensoredDir          string        `env:"CENSORED_DIR"`
	CharReplacement      string        `env:"CHARACTER_REPLACEMENT,default=*"`
	AllowedOrigins       string        `env:"ALLOWED_ORIGINS,default=*"`
	DebugPort            int           `env:"DEBUG_PORT"`
}

// Validate rejects durations the workers cannot run with.
// DISCOVERY_TIMEOUT=0 degrades at once and METRIC_INTERVAL=0 disables sampling, both are allowed.
func (c Config) Validate() error {
	positive := map[string]time.Duration{
		"CONNECTIVITY_INTERVAL": c.ConnectivityInterval,
		"PUBLISH_TIMEOUT":       c.PublishTimeout,
		"SINK_TIMEOUT":          c.SinkTimeout,
		"RESTART_INTERVAL":      c.RestartInterval,
	}
	for name, value := range positive {
		if value <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, value)
		}
	}
	if c.DiscoveryTimeout < 0 || c.MetricInterval < 0 {
		return fmt.Errorf("DISCOVERY_TIMEOUT and METRIC_INTERVAL cannot be negative")
	}
	if c.PublishQueueSize <= 0 || c.EventBufferSize <= 0 {
		return fmt.Errorf("PUBLISH_QUEUE_SIZE and EVENT_BUFFER_SIZE must be positive")
	}
	return nil
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}

// SplitList reads a comma separated variable, blanks are dropped.
func SplitList(str string) []string {
	var res []string
	for _, item := range strings.Split(str, ",") {
		if item = strings.TrimSpace(item); item != "" {
			res = append(res, item)
		}
	}
	return res
}

// Package config loads agent and server settings from the environment and
// lets command-line flags override them.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"
)

// DefaultService is the mDNS service type the server registers.
const DefaultService = "_collabnotes._tcp"

// Transport holds websocket timing and buffering shared by both ends.
type Transport struct {
	PingInterval     time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	HandshakeTimeout time.Duration
	SendBuffer       int
}

// DefaultTransport returns the fixed connection timings.
func DefaultTransport() Transport {
	return Transport{
		PingInterval:     54 * time.Second,
		ReadTimeout:      60 * time.Second,
		WriteTimeout:     10 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		SendBuffer:       256,
	}
}

// Agent configures the notes client.
type Agent struct {
	ServerURL       string
	Discover        bool
	Service         string
	DiscoverTimeout time.Duration
	TitleDebounce   time.Duration
	ContentDebounce time.Duration
	Reconnect       bool
	LogLevel        string
	LogFormat       string
	Transport       Transport
}

// LoadAgent reads agent settings from NOTES_* variables.
func LoadAgent() *Agent {
	return &Agent{
		ServerURL:       getenv("NOTES_SERVER_URL", "ws://localhost:8081/ws"),
		Discover:        getenvBool("NOTES_DISCOVER", false),
		Service:         getenv("NOTES_SERVICE", DefaultService),
		DiscoverTimeout: getenvDuration("NOTES_DISCOVER_TIMEOUT", 5*time.Second),
		TitleDebounce:   getenvDuration("NOTES_TITLE_DEBOUNCE", 300*time.Millisecond),
		ContentDebounce: getenvDuration("NOTES_CONTENT_DEBOUNCE", 500*time.Millisecond),
		Reconnect:       getenvBool("NOTES_RECONNECT", false),
		LogLevel:        getenv("NOTES_LOG_LEVEL", "info"),
		LogFormat:       getenv("NOTES_LOG_FORMAT", "text"),
		Transport:       DefaultTransport(),
	}
}

// BindFlags registers flags that override the loaded values.
func (a *Agent) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&a.ServerURL, "server", a.ServerURL, "room server websocket URL")
	fs.BoolVar(&a.Discover, "discover", a.Discover, "find the room server with mDNS instead of --server")
	fs.StringVar(&a.Service, "service", a.Service, "mDNS service type to browse")
	fs.DurationVar(&a.DiscoverTimeout, "discover-timeout", a.DiscoverTimeout, "how long to browse for a server")
	fs.DurationVar(&a.TitleDebounce, "title-debounce", a.TitleDebounce, "delay before a title edit is sent")
	fs.DurationVar(&a.ContentDebounce, "content-debounce", a.ContentDebounce, "delay before a body edit is sent")
	fs.BoolVar(&a.Reconnect, "reconnect", a.Reconnect, "redial with backoff after the connection drops")
	fs.StringVar(&a.LogLevel, "log-level", a.LogLevel, "debug, info, warn or error")
	fs.StringVar(&a.LogFormat, "log-format", a.LogFormat, "text or json")
}

// Server configures the reference room server.
type Server struct {
	Addr        string
	RedisAddr   string
	DatabaseURL string
	BoltPath    string
	Discovery   bool
	Service     string
	LogLevel    string
	LogFormat   string
	Transport   Transport
}

// LoadServer reads server settings. REDIS_ADDR and DATABASE_URL are optional;
// when empty the server keeps broadcasts in process and notes in memory or bbolt.
func LoadServer() *Server {
	return &Server{
		Addr:        getenv("SERVER_ADDR", ":8081"),
		RedisAddr:   os.Getenv("REDIS_ADDR"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		BoltPath:    os.Getenv("NOTES_BOLT_PATH"),
		Discovery:   getenvBool("NOTES_DISCOVERY", false),
		Service:     getenv("NOTES_SERVICE", DefaultService),
		LogLevel:    getenv("NOTES_LOG_LEVEL", "info"),
		LogFormat:   getenv("NOTES_LOG_FORMAT", "text"),
		Transport:   DefaultTransport(),
	}
}

// BindFlags registers flags that override the loaded values.
func (s *Server) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&s.Addr, "addr", s.Addr, "listen address")
	fs.StringVar(&s.RedisAddr, "redis", s.RedisAddr, "redis address for cross-instance broadcasts")
	fs.StringVar(&s.DatabaseURL, "database-url", s.DatabaseURL, "postgres connection string for note storage")
	fs.StringVar(&s.BoltPath, "bolt", s.BoltPath, "bbolt file for note storage")
	fs.BoolVar(&s.Discovery, "mdns", s.Discovery, "advertise the server with mDNS")
	fs.StringVar(&s.Service, "service", s.Service, "mDNS service type to register")
	fs.StringVar(&s.LogLevel, "log-level", s.LogLevel, "debug, info, warn or error")
	fs.StringVar(&s.LogFormat, "log-format", s.LogFormat, "text or json")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

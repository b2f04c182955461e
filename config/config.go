// Package config parses the server's CLI flags into a Config the rest
// of the server wires its components from.
package config

import (
	"time"

	"github.com/spf13/pflag"
)

// Config holds the server's configuration knobs.
type Config struct {
	Listen           string
	RoomPathPrefix   string
	HistoryCap       int
	CursorThrottleMs int
	FlushDebounceMs  int
	DurabilityDir    string
}

// FlushDebounce is FlushDebounceMs as a time.Duration, for room.New.
func (c Config) FlushDebounce() time.Duration {
	return time.Duration(c.FlushDebounceMs) * time.Millisecond
}

// Parse builds a Config from args (typically os.Args[1:]), applying
// sensible defaults for any flag left unset.
func Parse(args []string) (Config, error) {
	fs := pflag.NewFlagSet("crdtcollab", pflag.ContinueOnError)

	cfg := Config{}
	fs.StringVar(&cfg.Listen, "listen", ":1999", "address to listen on")
	fs.StringVar(&cfg.RoomPathPrefix, "room-path-prefix", "/rooms", "URL path prefix rooms are served under")
	fs.IntVar(&cfg.HistoryCap, "history-cap", 100, "per-connection undo/redo stack depth")
	fs.IntVar(&cfg.CursorThrottleMs, "cursor-throttle-ms", 50, "client-side cursor update throttle, advertised to clients")
	fs.IntVar(&cfg.FlushDebounceMs, "flush-debounce-ms", 2000, "debounce window before a dirty room flushes to durability")
	fs.StringVar(&cfg.DurabilityDir, "durability-dir", "./data", "directory the file-backed durability hook persists room snapshots under")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

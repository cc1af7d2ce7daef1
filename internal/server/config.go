package server

import "time"

// Config represents the server subcommand configuration.
type Config struct {
	Addr              string        `help:"Bus control server listen address" default:":3261" env:"VIRTPAD_ADDR"`
	Password          string        `help:"Password clients must present; empty disables authentication" env:"VIRTPAD_PASSWORD"`
	ConnectionTimeout time.Duration `kong:"-"`
}

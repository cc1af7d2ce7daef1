// Package cmd defines the virtpad command line surface.
package cmd

// LogFlags groups the logging options shared by every command.
type LogFlags struct {
	Level   string `help:"Log level (trace, debug, info, warn, error)" default:"info" env:"VIRTPAD_LOG_LEVEL"`
	File    string `help:"Log file path; empty logs to stdout/stderr" env:"VIRTPAD_LOG_FILE"`
	RawFile string `help:"Raw frame log file path" env:"VIRTPAD_LOG_RAW_FILE"`
}

// CLI is the root command structure parsed by kong.
type CLI struct {
	Config string   `help:"Path to a config file (json, yaml or toml)" env:"VIRTPAD_CONFIG"`
	Log    LogFlags `embed:"" prefix:"log."`

	Server    Server        `cmd:"" help:"Run the virtpad bus server"`
	ConfigCmd ConfigCommand `cmd:"" name:"config" help:"Configuration file helpers"`
	Version   Version       `cmd:"" help:"Check the protocol version of a running bus"`
	Plug      Plug          `cmd:"" help:"Plug a virtual controller into a running bus"`
	Unplug    Unplug        `cmd:"" help:"Unplug a virtual controller"`
	Watch     Watch         `cmd:"" help:"Watch feedback (rumble, LEDs) for a target"`
	Feedback  Feedback      `cmd:"" help:"Push feedback toward a target"`
}

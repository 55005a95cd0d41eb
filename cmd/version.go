package cmd

// Version is the application version.
// Intended to be set at build time via ldflags:
// go build -ldflags "-X github.com/nightglove/cadence/cmd.Version=1.0.0"
var Version = "0.1"

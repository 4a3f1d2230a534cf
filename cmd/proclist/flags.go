package main

import "time"

// Flag structs decouple cobra from the command logic for testing.

// GlobalFlags holds persistent flags shared by all commands.
type GlobalFlags struct {
	ConfigPath string
}

type SearchFlags struct {
	Keyword    string
	NoFallback bool
	Local      bool
	// Remote daemon connection
	APIUrl     string
	APITimeout time.Duration
}

type PortFlags struct {
	Port int
	// Remote daemon connection
	APIUrl     string
	APITimeout time.Duration
}

type RefreshFlags struct {
	// Remote daemon connection
	APIUrl     string
	APITimeout time.Duration
}

type RemoveFlags struct {
	ID string
	// Remote daemon connection
	APIUrl     string
	APITimeout time.Duration
}

type KillFlags struct {
	PID   string
	Wait  time.Duration
	Force bool
	// Remote daemon connection
	APIUrl     string
	APITimeout time.Duration
}

type StatusFlags struct {
	// Remote daemon connection
	APIUrl     string
	APITimeout time.Duration
}

type JournalFlags struct {
	Limit int
	// Remote daemon connection
	APIUrl     string
	APITimeout time.Duration
}

type ServeFlags struct {
	ConfigPath string
}

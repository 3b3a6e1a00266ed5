package main

// ServiceFlags decouple cobra from the add/update logic for testing.
type ServiceFlags struct {
	Name       string
	Executable string
	WorkDir    string
	Args       []string
	ArgsText   string
	Env        []string
}

type ServeFlags struct {
	ConfigPath string
	Daemonize  bool
	PidFile    string
	LogFile    string
}

type EventsFlags struct {
	Limit  int
	Follow bool
}

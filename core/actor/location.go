package actor

import "os"

func selfLocation() Location {
	host, _ := os.Hostname()
	return Location{Hostname: host, PID: os.Getpid()}
}

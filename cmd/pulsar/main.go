// Command pulsar schedules dependency graphs of tasks under a concurrency
// bound.
package main

import "github.com/papapumpkin/pulsar/cmd"

func main() {
	cmd.Execute()
}

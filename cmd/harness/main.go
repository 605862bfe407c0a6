// Command harness is the CLI entry point for the run/record/replay
// sub-commands of §6, built with spf13/cobra the way
// vanducng-goclaw/cmd/root.go structures its sub-commands (the teacher's own
// cmd/demo has no cobra usage to ground on).
package main

import "os"

func main() {
	os.Exit(Execute())
}

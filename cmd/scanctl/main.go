// Command scanctl is an operator CLI for the vulnerability scan API: submit
// images, poll status, list recent scans, and inspect dashboard stats.
package main

import "github.com/scanforge/vulnscan-engine/cmd/scanctl/commands"

func main() {
	commands.Execute()
}

// Package main is the entry point for formdesk.
package main

import "formdesk/cmd"

func main() {
	cmd.Execute()
}

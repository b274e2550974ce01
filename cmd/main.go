/*
Package main is the entry point for the TempChat server binary.
*/
package main

import "tempchat/cmd/commands"

func main() {
	commands.Execute()
}

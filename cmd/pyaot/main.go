// Command pyaot compiles Python source files to Zig.
package main

import "metal0/pyaot/cmd/pyaot/commands"

func main() {
	commands.Execute()
}

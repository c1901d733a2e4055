// The main package for the progressmon executable.
package main

import (
	"github.com/JakeFAU/realtime-progress/cmd"
)

// main defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}

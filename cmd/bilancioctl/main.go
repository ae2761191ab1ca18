// Command bilancioctl reads and updates bilancio budget plans from the shell.
// Results are printed as JSON; diagnostics go to stderr.
package main

func main() {
	Execute()
}

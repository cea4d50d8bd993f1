// Command cpctl is the CLI for cfgrepo: a branched, versioned
// configuration store with memory, sqlite, and git-backed repos.
package main

func main() {
	Execute()
}

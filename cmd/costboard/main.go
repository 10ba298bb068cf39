// Package main is the entry point for costboard.
package main

func main() {
	Execute()
}

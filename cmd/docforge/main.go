// Package main is the entry point for docforge.
package main

func main() {
	Execute()
}

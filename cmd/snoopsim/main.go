// Package main provides the snoopsim command line.
package main

func main() {
	Execute()
}

// Program buildidx crawls Debian/Ubuntu package repositories and indexes the
// ELF build IDs of the packages it finds, answering "which package provides
// the binary with build ID X".
//
// Usage:
//
//	buildidx scan [root-url...]
//	buildidx generate-index
//	buildidx lookup <build-id>...
//
// See --help for all commands and options.
package main

func main() {
	Execute()
}

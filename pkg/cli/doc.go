// Package cli holds the helpers shared by chatlogo subcommands: printing
// results as YAML or JSON, decoding YAML/JSON files and locating the local
// data directory.
package cli

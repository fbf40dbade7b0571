// Command chatlogo runs the chat server and inspects its data.
//
// Usage:
//
//	chatlogo [flags] <command> [args]
//
// Commands:
//
//	serve      - Run the HTTP server
//	chats      - List conversations
//	docs       - Show artifact versions
//	token      - Issue a bearer token for local testing
//	version    - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/haivivi/chatlogo/cmd/chatlogo/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Command crdbctl is a terminal client for a running coordinatord: publish
// and clone repositories, sync a replica's operation log, and print room
// credentials, all driven through internal/transport's §6 request/response
// client.
package main

import "github.com/replistore/crdb/cmd/crdbctl/cmd"

func main() {
	cmd.Execute()
}

package main

import (
	"stemdesk/cmd"
)

func main() {
	cmd.Execute()
}

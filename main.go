package main

import "github.com/RyanBlaney/dash-abr-client/cmd"

func main() {
	cmd.Execute()
}

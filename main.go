package main

import "paimon-mirror/cmd"

func main() {
	cmd.Execute()
}

package main

import "card-inventory/cmd"

func main() {
	cmd.Execute()
}

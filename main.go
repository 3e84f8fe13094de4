package main

import "deckrag/cmd"

func main() {
	cmd.Execute()
}

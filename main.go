package main

import "github.com/kamusis/kbmatch/cmd"

func main() {
	cmd.Execute()
}

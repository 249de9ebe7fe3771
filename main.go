package main

import "github.com/ValentinKolb/dRelay/cmd"

func main() {
	cmd.Execute()
}

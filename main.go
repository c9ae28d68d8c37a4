package main

import "github.com/ValentinKolb/htrie/cmd"

func main() {
	cmd.Execute()
}

package main

import "github.com/ValentinKolb/dTask/cmd"

func main() {
	cmd.Execute()
}

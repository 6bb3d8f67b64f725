package main

import "github.com/KaramelBytes/custlens/cmd"

func main() {
	cmd.Execute()
}

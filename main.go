package main

import "github.com/creativeprojects/mailfolder/cmd"

// set by the linker
var (
	version = "dev"
	commit  = ""
	date    = ""
	builtBy = ""
)

func main() {
	cmd.Execute(version, commit, date, builtBy)
}

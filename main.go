package main

import "github.com/RavenSong/textpattern-hive-framework/cmd"

func main() {
	cmd.Execute()
}

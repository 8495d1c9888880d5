package main

import "github.com/Norgate-AV/outcache/cmd"

func main() {
	cmd.Execute()
}

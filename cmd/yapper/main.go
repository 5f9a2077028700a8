package main

import "github.com/vovakirdan/yapper-sdk-go/cmd/yapper/cmd"

func main() {
	cmd.Execute()
}

package main

import "github.com/oshokin/webext-packager/cmd/webext-packager/cmd"

func main() {
	cmd.Execute()
}

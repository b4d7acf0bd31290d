package main

import "github.com/rehiy/modem-fota/cmd"

func main() {
	cmd.Execute()
}

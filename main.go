package main

import "fauxto-booth-backend/cmd"

func main() {
	cmd.Run()
}

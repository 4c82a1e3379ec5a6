package main

import "github.com/re178/mega-facebook-autoposter/cmd"

func main() {
	cmd.Execute()
}

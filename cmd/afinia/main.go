package main

import "github.com/danielpatrickdp/afinia/cmd/afinia/cmd"

func main() {
	cmd.Execute()
}

package main

import "github.com/privacybydesign/pidissuer/server/pidissuerd/cmd"

func main() {
	cmd.Execute()
}

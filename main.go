// peersync replicates study state between paired devices over direct peer
// connections.
package main

import (
	"fmt"
	"os"

	"github.com/jd-code76/provinent-scripture-study-sub000/cmd"
	"github.com/jd-code76/provinent-scripture-study-sub000/node"
)

var (
	version string
	commit  string
	branch  string
)

func main() { // run the app
	cmd.Version = version
	cmd.Commit = commit
	cmd.Branch = branch
	if err := node.GetCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

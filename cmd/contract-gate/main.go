// Command contract-gate runs the usage-control connector core.
package main

import "github.com/Sentinel-Gate/Contractgate/cmd/contract-gate/cmd"

func main() {
	cmd.Execute()
}

// Command redteam runs the adversarial multi-turn attack orchestrator.
package main

import "github.com/perplext/redteam-core/src/cmd"

func main() {
	cmd.Execute()
}

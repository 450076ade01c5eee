// Command evolvd supervises a worker process across generations, mutating
// its genome and recording the lineage of every transition.
package main

import "github.com/evolvd/evolvd/internal/cli"

func main() {
	cli.Execute()
}

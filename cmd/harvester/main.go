package main

import (
	"catalog-harvester/cmd/harvester/commands"
	"catalog-harvester/lib/osutil"
)

func main() {
	commands.ExecuteContext(osutil.SignalContext())
}

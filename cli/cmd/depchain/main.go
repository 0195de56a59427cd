package main

import (
	"github.com/buildbeaver/depchain/cli/cmd/depchain/commands"
	_ "github.com/buildbeaver/depchain/cli/cmd/depchain/commands/clean"
	_ "github.com/buildbeaver/depchain/cli/cmd/depchain/commands/jobs"
	_ "github.com/buildbeaver/depchain/cli/cmd/depchain/commands/migrate"
	_ "github.com/buildbeaver/depchain/cli/cmd/depchain/commands/plan"
	_ "github.com/buildbeaver/depchain/cli/cmd/depchain/commands/remote"
	_ "github.com/buildbeaver/depchain/cli/cmd/depchain/commands/run"
	_ "github.com/buildbeaver/depchain/cli/cmd/depchain/commands/runs"
	_ "github.com/buildbeaver/depchain/cli/cmd/depchain/commands/serve"
	_ "github.com/buildbeaver/depchain/cli/cmd/depchain/commands/validate"
)

func main() {
	commands.Execute()
}

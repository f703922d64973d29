package console

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

// Exit builds a cli.ExitCoder carrying a formatted message and process exit
// code, for returning directly from a cli.Command's Action.
func Exit(code int, msg string, args ...interface{}) cli.ExitCoder {
	return cli.Exit(fmt.Sprintf(msg, args...), code)
}

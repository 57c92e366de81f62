package console

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

func Exit(code int, msg string, args ...interface{}) cli.ExitCoder {
	return cli.Exit(fmt.Sprintf(msg, args...), code)
}

// Fail reports an error returned by the board with the ERROR prefix.
func Fail(err error, msg string, args ...interface{}) cli.ExitCoder {
	return cli.Exit(fmt.Sprintf("%s: %s: %s", Red("ERROR"), fmt.Sprintf(msg, args...), err), 1)
}

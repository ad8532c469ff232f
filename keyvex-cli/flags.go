package keyvexcli

import "github.com/urfave/cli/v2"

var CommonOpts struct {
	Console bool
	Dry     bool
	Env     string
	Port    int
}

var ConsoleFlag = cli.BoolFlag{
	Name:        "console",
	Usage:       "whether to run in console mode or lambda mode",
	Value:       false,
	EnvVars:     []string{"CONSOLE"},
	Destination: &CommonOpts.Console,
}
var DryFlag = cli.BoolFlag{
	Name:        "dry",
	Usage:       "whether to actually persist any records or not",
	Value:       false,
	EnvVars:     []string{"DRY"},
	Destination: &CommonOpts.Dry,
}
var EnvFlag = cli.StringFlag{
	Name:        "env",
	Usage:       "environment",
	Value:       "local",
	EnvVars:     []string{"ENV"},
	Destination: &CommonOpts.Env,
}
var PortFlag = func(p int) *cli.IntFlag {
	return &cli.IntFlag{
		Name:        "port",
		Usage:       "Port to listen to, if running locally",
		Value:       p,
		EnvVars:     []string{"PORT"},
		Destination: &CommonOpts.Port,
	}
}

var CommonFlags = []cli.Flag{
	&ConsoleFlag,
	&DryFlag,
	&EnvFlag,
}

// StringFlag builds a string flag whose env var is the SCREAMING_SNAKE form of
// its name.
func StringFlag(name, usage string, destination *string, value ...string) *cli.StringFlag {
	var def string
	if len(value) > 0 {
		def = value[0]
	}
	return &cli.StringFlag{
		Name:        name,
		Usage:       usage,
		Value:       def,
		EnvVars:     []string{envVarName(name)},
		Destination: destination,
	}
}

func BoolFlag(name, usage string, destination *bool) *cli.BoolFlag {
	return &cli.BoolFlag{
		Name:        name,
		Usage:       usage,
		EnvVars:     []string{envVarName(name)},
		Destination: destination,
	}
}

func IntFlag(name, usage string, destination *int, value int) *cli.IntFlag {
	return &cli.IntFlag{
		Name:        name,
		Usage:       usage,
		Value:       value,
		EnvVars:     []string{envVarName(name)},
		Destination: destination,
	}
}

func envVarName(flagName string) string {
	var out []byte
	for i := 0; i < len(flagName); i++ {
		c := flagName[i]
		switch {
		case c == '-':
			out = append(out, '_')
		case c >= 'a' && c <= 'z':
			out = append(out, c-'a'+'A')
		default:
			out = append(out, c)
		}
	}
	return string(out)
}

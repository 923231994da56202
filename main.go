package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/mil-ad/pmbridge/internal/config"
	"github.com/mil-ad/pmbridge/internal/protocol"
	"github.com/mil-ad/pmbridge/internal/sdk"
)

const usage = `usage: pmbridge [-config file] <command> [args]

commands:
  serve                   line protocol on stdin/stdout (default)
  daemon                  line protocol on a unix socket
  call <command> [args]   send one command to the daemon
  sync [-state file] [-since unix] <device|url>
                          copy the device's data log
  probe                   report Bluetooth LE availability
  version                 print the SDK version
`

func main() {
	fs := flag.NewFlagSet("pmbridge", flag.ExitOnError)
	cfgPath := fs.String("config", config.DefaultPath(), "configuration file")
	fs.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	_ = fs.Parse(os.Args[1:])

	args := fs.Args()
	cmd := "serve"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "serve":
		err = runServe(*cfgPath)
	case "daemon":
		err = runDaemon(*cfgPath)
	case "call":
		if len(args) < 1 {
			fmt.Fprintln(os.Stderr, "usage: pmbridge call <command> [args]")
			os.Exit(1)
		}
		err = runCall(*cfgPath, args[0], args[1:])
	case "sync":
		err = runSync(*cfgPath, args)
	case "probe":
		err = json.NewEncoder(os.Stdout).Encode(map[string]bool{"bleAvailable": probeBLE()})
	case "version":
		v := protocol.NewVersion(sdk.Version())
		fmt.Printf("pmbridge sdk %s\n", v.String)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		fs.Usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

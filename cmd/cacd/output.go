package main

import (
	"encoding/json"
	"fmt"
	"os"
)

// jsonFlag is bound once to the root command's persistent flag and read
// by every subcommand (spec §7: "all commands accept a --json flag").
var jsonFlag bool

// emit writes exactly one JSON object to stdout when --json is set,
// otherwise calls human for a plain-text rendering. Either way it
// returns nil so cobra reports a clean exit.
func emit(data any, human func()) error {
	if jsonFlag {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	}
	human()
	return nil
}

// fail writes exactly one JSON object to stderr when --json is set,
// otherwise prints a plain-text error line. The caller still returns
// err so cobra's non-zero exit behaviour fires. A nil err is returned
// as-is without writing anything.
func fail(err error) error {
	if err == nil {
		return nil
	}
	if jsonFlag {
		enc := json.NewEncoder(os.Stderr)
		_ = enc.Encode(map[string]string{"error": err.Error()})
	} else {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	return err
}

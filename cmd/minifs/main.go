// Command minifs runs the MiniFS command interpreter over stdin/stdout,
// mirroring original_source/File System/main.cpp's driver loop: compose the
// subsystems defined in packages, then hand control to them.
package main

import (
	"os"

	"github.com/rtprakash/minifs/minifs"
	"github.com/rtprakash/minifs/shell"
)

func main() {
	s := shell.New(minifs.New(), os.Stdin, os.Stdout)
	if err := s.Run(); err != nil {
		os.Exit(1)
	}
}

// Command pitchtool runs the tracking and pitch-analysis steps offline on
// local files.
//
//	pitchtool track      -input match.mp4 -out tracks.json
//	pitchtool homography -points points.csv -out H.yaml
//	pitchtool warp       -tracks tracks.json -H H.yaml -out xy.csv
//	pitchtool xt         -xy xy.csv -table xt.csv -out scores.csv
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/your-org/pitchtrack/internal/observability"
)

type command struct {
	name  string
	usage string
	run   func(args []string) error
}

var commands = []command{
	{"track", "detect and track players in a video", runTrack},
	{"homography", "estimate an image-to-pitch homography from point pairs", runHomography},
	{"warp", "project tracks onto pitch coordinates", runWarp},
	{"xt", "score projected tracks with an xT table", runXT},
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: pitchtool <command> [flags]")
	fmt.Fprintln(os.Stderr)
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-11s %s\n", c.name, c.usage)
	}
}

func main() {
	observability.SetupLogger(os.Getenv("PT_LOG_LEVEL"), "text")

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	name := os.Args[1]
	for _, c := range commands {
		if c.name != name {
			continue
		}
		if err := c.run(os.Args[2:]); err != nil {
			if errors.Is(err, flag.ErrHelp) {
				os.Exit(0)
			}
			slog.Error(name+" failed", "error", err)
			os.Exit(1)
		}
		return
	}

	fmt.Fprintf(os.Stderr, "unknown command %q\n\n", name)
	usage()
	os.Exit(2)
}

// requireFlags reports the first empty flag among names.
func requireFlags(fs *flag.FlagSet, names ...string) error {
	for _, n := range names {
		if f := fs.Lookup(n); f == nil || f.Value.String() == "" {
			return fmt.Errorf("-%s is required", n)
		}
	}
	return nil
}

package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/dustin/go-humanize"

	evlog "voxelterrain.ai/internal/persistence/log"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "stats":
			statsCmd(os.Args[2:])
			return
		case "history":
			historyCmd(os.Args[2:])
			return
		case "reseed":
			reseedCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

// listCmd prints worlds under the data dir, or one world's event logs.
func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (optional)")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "worlds")
	if *worldID == "" {
		entries, err := os.ReadDir(base)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read:", err)
			os.Exit(1)
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			if e.IsDir() {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)
		for _, n := range names {
			fmt.Println(n)
		}
		return
	}

	files, err := evlog.Files(filepath.Join(base, *worldID, "events"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	var total uint64
	for _, path := range files {
		st, err := os.Stat(path)
		if err != nil {
			continue
		}
		total += uint64(st.Size())
		fmt.Printf("%s\t%s\n", filepath.Base(path), humanize.Bytes(uint64(st.Size())))
	}
	fmt.Printf("%d files, %s\n", len(files), humanize.Bytes(total))
}

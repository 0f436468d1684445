// Command moviectl is a terminal client for the movie catalog API.
//
//	moviectl login neo
//	moviectl search "the matrix"
//	moviectl add 1
//	moviectl list
//	moviectl fav <movie id>
//	moviectl rm <movie id>
//
// The session, favorites and last search are kept in ~/.moviectl.json.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

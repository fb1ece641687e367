// Command passwd prints a bcrypt hash for a credentials document entry.
//
//	echo -n 'secret' | passwd -username alice >> users.yaml
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/keithlinneman/authgate/internal/cryptoutil"
)

func main() {
	var (
		username string
		cost     int
	)
	flag.StringVar(&username, "username", "", "emit a users.yaml entry for this username instead of the bare hash")
	flag.IntVar(&cost, "cost", 12, fmt.Sprintf("bcrypt cost (min %d)", cryptoutil.MinPasswordCost))
	flag.Parse()

	// one line from stdin so the password stays out of argv and shell history
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintln(os.Stderr, "read password from stdin:", err)
		os.Exit(1)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		fmt.Fprintln(os.Stderr, "empty password")
		os.Exit(1)
	}

	hash, err := cryptoutil.HashPassword(password, cost)
	if err != nil {
		fmt.Fprintln(os.Stderr, "hash password:", err)
		os.Exit(1)
	}

	if username == "" {
		fmt.Println(hash)
		return
	}
	fmt.Printf("  - username: %s\n    password_hash: %q\n", username, hash)
}

// Command bucse-init creates a new bucse repository at a destination URL
// (spec §4.9, §6.5): it lays out the destination's storage/actions
// namespaces and writes the plaintext repository.json and encrypted
// repository control blobs, then exits — it does not mount anything.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/bchodorowski/bucse/internal/repo"
	"golang.org/x/term"
)

const version = "0.1.0"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("bucse-init", flag.ContinueOnError)
	passphrase := fs.String("p", "", "passphrase for the chosen cipher")
	cipher := fs.String("e", "none", "encryption cipher: none or aes")
	name := fs.String("n", "", "repository name")
	comment := fs.String("c", "", "repository comment")
	showVersion := fs.Bool("V", false, "print version and exit")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: bucse-init [-p passphrase] [-e cipher] [-n name] [-c comment] <repository-url>\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *showVersion {
		fmt.Println("bucse-init", version)
		return 0
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}
	repoURL := fs.Arg(0)

	pass := *passphrase
	if pass == "" && *cipher == "aes" {
		p, err := promptPassphrase()
		if err != nil {
			fmt.Fprintln(os.Stderr, "bucse-init:", err)
			return 1
		}
		pass = p
	}

	if err := repo.Init(context.Background(), repoURL, *name, *comment, *cipher, pass); err != nil {
		fmt.Fprintln(os.Stderr, "bucse-init:", err)
		return 1
	}
	return 0
}

// promptPassphrase reads a passphrase from the controlling terminal with
// echo disabled, matching bucse-mount's interactive prompt.
func promptPassphrase() (string, error) {
	fmt.Fprint(os.Stderr, "Passphrase: ")
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("no passphrase given and stdin is not a terminal")
	}
	data, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

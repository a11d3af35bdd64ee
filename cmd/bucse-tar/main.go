// Command bucse-tar streams a bucse repository's tree as a tar archive to
// stdout, without mounting it (a bucse-tar-style helper from the original
// implementation, useful for backup/inspection). It reads through the same
// Operations Layer (internal/fuseops) a live mount would use, read-only.
package main

import (
	"archive/tar"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/bchodorowski/bucse/internal/config"
	"github.com/bchodorowski/bucse/internal/fuseops"
	"github.com/bchodorowski/bucse/internal/repo"
)

const version = "0.1.0"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, out io.Writer) int {
	fs := flag.NewFlagSet("bucse-tar", flag.ContinueOnError)
	repoURL := fs.String("r", "", "repository URL to archive")
	passphrase := fs.String("p", "", "repository passphrase")
	showVersion := fs.Bool("V", false, "print version and exit")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: bucse-tar -r repo-url [-p passphrase] > archive.tar\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *showVersion {
		fmt.Println("bucse-tar", version)
		return 0
	}
	if *repoURL == "" {
		fs.Usage()
		return 2
	}

	cfg := config.NewDefault()
	cfg.Repository = *repoURL
	cfg.Passphrase = *passphrase
	cfg.ReadOnly = true
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "bucse-tar:", err)
		return 1
	}

	ctx := context.Background()
	r, err := repo.Mount(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bucse-tar:", err)
		return 1
	}
	defer r.Unmount(ctx)

	tw := tar.NewWriter(out)
	defer tw.Close()

	if err := walk(ctx, r, tw, "/"); err != nil {
		fmt.Fprintln(os.Stderr, "bucse-tar:", err)
		return 1
	}
	return 0
}

// walk recurses dirPath's tree, writing one tar header (plus content, for
// files) per entry, entirely through fuseops's read-only calls.
func walk(ctx context.Context, r *repo.Repository, tw *tar.Writer, dirPath string) error {
	entries, err := fuseops.Readdir(ctx, r, dirPath)
	if err != nil {
		return err
	}
	for _, e := range entries {
		childPath := path.Join(dirPath, e.Name)
		attr, err := fuseops.Getattr(ctx, r, childPath)
		if err != nil {
			return err
		}
		hdr := &tar.Header{
			Name:    childPath[1:], // tar names are relative, no leading "/"
			ModTime: attr.Mtime,
		}
		if e.IsDir {
			hdr.Typeflag = tar.TypeDir
			hdr.Name += "/"
			hdr.Mode = int64(attr.Mode)
			if err := tw.WriteHeader(hdr); err != nil {
				return err
			}
			if err := walk(ctx, r, tw, childPath); err != nil {
				return err
			}
			continue
		}
		hdr.Typeflag = tar.TypeReg
		hdr.Mode = int64(attr.Mode)
		hdr.Size = attr.Size
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if attr.Size > 0 {
			data, err := fuseops.Read(ctx, r, childPath, 0, attr.Size)
			if err != nil {
				return err
			}
			if _, err := tw.Write(data); err != nil {
				return err
			}
		}
	}
	return nil
}

// Command icapscan submits files to an ICAP content-scanning server and
// reports the verdicts.
//
// Exit codes: 0 clean, 1 infected, 2 invalid arguments, 111 connection
// refused, 255 server/protocol error.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	icap "github.com/scanforge/go-icap"
)

const (
	exitClean    = 0
	exitInfected = 1
	exitUsage    = 2
	exitRefused  = 111
	exitError    = 255
)

var (
	urlFlag     = flag.String("url", "", "ICAP server URL, e.g. icap://scanner:1344/avscan (required)")
	noPreview   = flag.Bool("no-preview", false, "send the full body up front even if the server supports preview")
	maxSize     = flag.Int64("max-size", 0, "skip files larger than this many bytes (0 = no limit)")
	optionsOnly = flag.Bool("options", false, "send OPTIONS only and print server capabilities")
	verbose     = flag.Bool("v", false, "print per-file results for clean files too")
	debug       = flag.Bool("d", false, "trace wire traffic to stderr")
	attachID    = flag.Bool("scan-id", false, "attach an X-Scan-ID header to each scan")
	proxyURL    = flag.String("proxy", "", "upstream SOCKS5 proxy URL (socks5://host:port)")
	connTimeout = flag.Duration("conn-timeout", 10*time.Second, "TCP connect timeout")
)

func main() {
	os.Exit(run())
}

func run() int {
	flag.Usage = usage
	flag.Parse()

	if *urlFlag == "" {
		fmt.Fprintln(os.Stderr, "icapscan: -url is required")
		usage()
		return exitUsage
	}
	paths := flag.Args()
	if !*optionsOnly && len(paths) == 0 {
		fmt.Fprintln(os.Stderr, "icapscan: no files or directories given")
		usage()
		return exitUsage
	}

	opts := icap.Options{
		URL:          *urlFlag,
		UsePreview:   !*noPreview,
		AttachScanID: *attachID,
		ProxyURL:     *proxyURL,
		ConnTimeout:  *connTimeout,
	}
	if *debug {
		opts.Trace = os.Stderr
	}

	sess, err := icap.Connect(context.Background(), opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "icapscan: %v\n", err)
		return exitCodeFor(err)
	}
	defer sess.Close()

	if *optionsOnly {
		caps := sess.Capabilities()
		if caps.PreviewSupported() {
			fmt.Printf("preview: %d\n", caps.PreviewSize)
		} else {
			fmt.Println("preview: not supported")
		}
		if caps.Methods != "" {
			fmt.Printf("methods: %s\n", caps.Methods)
		}
		if caps.Allow != "" {
			fmt.Printf("allow: %s\n", caps.Allow)
		}
		return exitClean
	}

	files, err := collectFiles(paths)
	if err != nil {
		fmt.Fprintf(os.Stderr, "icapscan: %v\n", err)
		return exitUsage
	}

	code := exitClean
	for _, file := range files {
		infected, err := scanFile(sess, file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "icapscan: %s: %v\n", file, err)
			return exitCodeFor(err)
		}
		if infected {
			code = exitInfected
		}
	}
	return code
}

// collectFiles expands the given paths, recursing into directories.
func collectFiles(paths []string) ([]string, error) {
	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, path)
			continue
		}
		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() {
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

// scanFile submits one file, applying the skip policy for non-regular and
// oversize files. Skips are notices, not errors, and do not affect the
// verdict aggregation.
func scanFile(sess *icap.Session, path string) (infected bool, err error) {
	info, err := os.Lstat(path)
	if err != nil {
		return false, err
	}
	if !info.Mode().IsRegular() {
		fmt.Fprintf(os.Stderr, "icapscan: skipping %s: not a regular file\n", path)
		return false, nil
	}
	if *maxSize > 0 && info.Size() > *maxSize {
		fmt.Fprintf(os.Stderr, "icapscan: skipping %s: %d bytes exceeds limit\n", path, info.Size())
		return false, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	verdict, err := sess.Scan(icap.ScanTarget{
		Name:   filepath.Base(path),
		Source: f,
	})
	if err != nil {
		return false, err
	}

	if verdict.Infected {
		fmt.Printf("%s: INFECTED", path)
		if len(verdict.ThreatInfo) > 0 {
			fmt.Printf(" (%s)", strings.Join(verdict.ThreatInfo, "; "))
		}
		fmt.Println()
		return true, nil
	}
	if *verbose {
		fmt.Printf("%s: clean\n", path)
	}
	return false, nil
}

// exitCodeFor maps a scan/connect failure to the process exit code.
func exitCodeFor(err error) int {
	var e *icap.Error
	if errors.As(err, &e) && e.Type == icap.ErrorTypeValidation {
		return exitUsage
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return exitRefused
	}
	return exitError
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: icapscan -url icap://host[:port][/service] [flags] path...\n")
	flag.PrintDefaults()
}

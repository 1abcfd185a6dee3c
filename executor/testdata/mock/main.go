//go:build wasip1

// Mock interpreter for testing executor logic without real Python.
// Build with: GOOS=wasip1 GOARCH=wasm go build -o ../mock.wasm .
//
// The script is a list of commands, one per line:
//
//	print <text>          write text to stdout
//	eprint <text>         write text to stderr
//	write <path> <text>   create or replace a file
//	read <path>           print a file's content
//	env <key>             print an environment variable
//	raise <message>       print a traceback and exit 1
//	exit <code>           exit with code
//	spin                  loop forever
package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: mock <script>")
		os.Exit(2)
	}
	script := os.Args[1]

	f, err := os.Open(script)
	if err != nil {
		fmt.Fprintf(os.Stderr, "can't open file %s: %v\n", script, err)
		os.Exit(2)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		cmd, arg, _ := strings.Cut(scanner.Text(), " ")
		switch cmd {
		case "print":
			fmt.Println(arg)
		case "eprint":
			fmt.Fprintln(os.Stderr, arg)
		case "write":
			path, text, _ := strings.Cut(arg, " ")
			if dir := filepath.Dir(path); dir != "." {
				os.MkdirAll(dir, 0o755)
			}
			if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
				raise(script, line, "OSError: "+err.Error())
			}
		case "read":
			data, err := os.ReadFile(arg)
			if err != nil {
				raise(script, line, "FileNotFoundError: "+arg)
			}
			fmt.Print(string(data))
		case "env":
			fmt.Println(os.Getenv(arg))
		case "raise":
			raise(script, line, arg)
		case "exit":
			code, _ := strconv.Atoi(arg)
			os.Exit(code)
		case "spin":
			for {
			}
		}
	}
}

func raise(script string, line int, msg string) {
	fmt.Fprintln(os.Stderr, "Traceback (most recent call last):")
	fmt.Fprintf(os.Stderr, "  File %q, line %d, in <module>\n", script, line)
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}

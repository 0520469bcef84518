// Command hash-generator prints the bcrypt hash of an operator key for
// NAILART_AUTH_OPERATOR_KEY_HASH. The key is read from the first argument,
// or from stdin when no argument is given.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/phrazzld/nailart-api/internal/service/auth"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "hash-generator:", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	var key string
	switch len(args) {
	case 0:
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to read key: %w", err)
		}
		key = strings.TrimRight(line, "\r\n")
	case 1:
		key = args[0]
	default:
		return errors.New("usage: hash-generator [operator-key]")
	}
	if key == "" {
		return errors.New("operator key cannot be empty")
	}

	hash, err := auth.HashOperatorKey(key)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, hash)
	return err
}

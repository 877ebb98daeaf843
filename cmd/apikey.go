package cmd

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"grimm.is/rnsgate/internal/auth"
	"grimm.is/rnsgate/internal/brand"
	"grimm.is/rnsgate/internal/validation"
)

// RunAPIKey manages API credentials. Keys live in the api block of the
// runtime configuration, so the commands print HCL to paste there.
func RunAPIKey(args []string) error {
	return runAPIKey(os.Stdout, os.Stdin, args)
}

func runAPIKey(w io.Writer, stdin io.Reader, args []string) error {
	if len(args) == 0 {
		return apiKeyUsage(w)
	}

	switch args[0] {
	case "generate", "create":
		return generateKey(w, args[1:])
	case "hash":
		return hashSecret(w, stdin, args[1:])
	case "help":
		return apiKeyUsage(w)
	default:
		return fmt.Errorf("unknown subcommand: %s", args[0])
	}
}

func apiKeyUsage(w io.Writer) error {
	Printer.Fprintf(w, `%s API Key Management

Usage:
  %s apikey <command> [options]

Commands:
  generate    Generate a key with a random secret
  hash        Hash an existing secret (read from stdin)
  help        Show this help

Generate Options:
  --name <name>           Name for the key (required)

Example:
  %s apikey generate --name opnsense
`, brand.Name, brand.BinaryName, brand.BinaryName)
	return nil
}

func generateKey(w io.Writer, args []string) error {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	name := fs.String("name", "", "Name for the key")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := validateKeyName(*name); err != nil {
		return err
	}

	secret, err := auth.GenerateSecret()
	if err != nil {
		return fmt.Errorf("failed to generate secret: %w", err)
	}
	hash, err := auth.HashSecret(secret)
	if err != nil {
		return err
	}

	Printer.Fprintf(w, "Key:    %s\n", *name)
	Printer.Fprintf(w, "Secret: %s\n\n", secret)
	Printer.Fprintln(w, "The secret is shown once. Add this block to the api section:")
	Printer.Fprintln(w)
	Printer.Fprint(w, keyBlock(*name, hash))
	return nil
}

func hashSecret(w io.Writer, stdin io.Reader, args []string) error {
	fs := flag.NewFlagSet("hash", flag.ContinueOnError)
	name := fs.String("name", "", "Print a complete key block with this name")
	if err := fs.Parse(args); err != nil {
		return err
	}

	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to read secret: %w", err)
	}
	hash, err := auth.HashSecret(strings.TrimRight(line, "\r\n"))
	if err != nil {
		return err
	}

	if *name == "" {
		Printer.Fprintln(w, hash)
		return nil
	}
	if err := validateKeyName(*name); err != nil {
		return err
	}
	Printer.Fprint(w, keyBlock(*name, hash))
	return nil
}

func validateKeyName(name string) error {
	if name == "" {
		return errors.New("--name is required")
	}
	if err := validation.ValidateIdentifier(name); err != nil {
		return fmt.Errorf("invalid key name: %w", err)
	}
	return nil
}

func keyBlock(name, hash string) string {
	return fmt.Sprintf("  key %q {\n    secret_hash = %q\n  }\n", name, hash)
}

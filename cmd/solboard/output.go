package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/brojonat/solboard/client"
	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"
)

// newClient builds an API client from the global flags.
func newClient(c *cli.Context) (*client.Client, error) {
	serverURL := c.String("server-url")
	if serverURL == "" {
		return nil, fmt.Errorf("server-url is required (set SOLBOARD_SERVER_URL env var or use --server-url)")
	}

	// Only errors to stderr
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
	return client.NewClient(serverURL, &http.Client{Timeout: c.Duration("timeout")}, logger), nil
}

// emit writes v as JSON when --json or --jq is set, and calls human otherwise.
func emit(c *cli.Context, v any, human func(w io.Writer)) error {
	w := c.App.Writer
	if filter := c.String("jq"); filter != "" {
		return runJQ(w, filter, v)
	}
	if c.Bool("json") {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode output: %w", err)
		}
		fmt.Fprintln(w, string(data))
		return nil
	}
	human(w)
	return nil
}

// compileJQ parses and compiles a jq filter.
func compileJQ(filter string) (*gojq.Code, error) {
	query, err := gojq.Parse(filter)
	if err != nil {
		return nil, fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
	}
	return code, nil
}

// toJQInput converts v into the generic JSON values gojq operates on.
func toJQInput(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, err
	}
	return generic, nil
}

// runJQ applies filter to v and prints each result on its own line.
func runJQ(w io.Writer, filter string, v any) error {
	code, err := compileJQ(filter)
	if err != nil {
		return err
	}
	input, err := toJQInput(v)
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}

	iter := code.Run(input)
	for {
		result, ok := iter.Next()
		if !ok {
			return nil
		}
		if err, isErr := result.(error); isErr {
			return fmt.Errorf("jq filter error: %w", err)
		}
		if s, isString := result.(string); isString {
			fmt.Fprintln(w, s)
			continue
		}
		data, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("failed to encode jq result: %w", err)
		}
		fmt.Fprintln(w, string(data))
	}
}

// matchesAll reports whether every compiled filter yields a truthy first
// result for v.
func matchesAll(codes []*gojq.Code, v any) bool {
	if len(codes) == 0 {
		return true
	}
	input, err := toJQInput(v)
	if err != nil {
		return false
	}
	for _, code := range codes {
		iter := code.Run(input)
		result, ok := iter.Next()
		if !ok {
			return false
		}
		if _, isErr := result.(error); isErr {
			return false
		}
		if !isTruthy(result) {
			return false
		}
	}
	return true
}

func isTruthy(v interface{}) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	// Everything else (numbers, strings, objects, arrays) is truthy
	return true
}

// shortSignature abbreviates a signature or address to its first and last
// four characters.
func shortSignature(s string) string {
	if len(s) <= 12 {
		return s
	}
	return s[:4] + "..." + s[len(s)-4:]
}

package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/shlex"
)

// RunSetup runs the interactive setup wizard. Each prompt defaults to the
// corresponding value of existing.
func RunSetup(in io.Reader, out io.Writer, existing Config) (Config, error) {
	r := bufio.NewReader(in)
	cfg := existing

	ask := func(prompt, defaultVal string) (string, error) {
		if defaultVal != "" {
			fmt.Fprintf(out, "%s [%s]: ", prompt, defaultVal)
		} else {
			fmt.Fprintf(out, "%s: ", prompt)
		}
		line, err := r.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			return "", err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			return defaultVal, nil
		}
		return line, nil
	}

	askBool := func(prompt string, defaultVal bool) (bool, error) {
		def := "n"
		if defaultVal {
			def = "y"
		}
		ans, err := ask(prompt+" (y/n)", def)
		if err != nil {
			return false, err
		}
		return strings.ToLower(ans) == "y" || strings.ToLower(ans) == "yes", nil
	}

	// askCommand reads a command line and splits it shell-style.
	askCommand := func(prompt string, c Command) (Command, error) {
		line, err := ask(prompt, strings.TrimSpace(c.Path+" "+strings.Join(c.Args, " ")))
		if err != nil {
			return c, err
		}
		words, err := shlex.Split(line)
		if err != nil || len(words) == 0 {
			return c, fmt.Errorf("invalid command %q", line)
		}
		return Command{Path: words[0], Args: words[1:]}, nil
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "  ┌─────────────────────────────────┐")
	fmt.Fprintln(out, "  │       fuzzherd: setup           │")
	fmt.Fprintln(out, "  └─────────────────────────────────┘")
	fmt.Fprintln(out)

	var err error
	if cfg.Target, err = askCommand("  Target command ({input} is the mutant path)", cfg.Target); err != nil {
		return cfg, err
	}
	if cfg.Mutator, err = askCommand("  Mutator command ({seed} {intensity} {input} {output})", cfg.Mutator); err != nil {
		return cfg, err
	}
	if cfg.SamplesDir, err = ask("  Samples directory", cfg.SamplesDir); err != nil {
		return cfg, err
	}
	if cfg.OutputDir, err = ask("  Output directory", cfg.OutputDir); err != nil {
		return cfg, err
	}

	codes, err := ask("  Intentional exit codes (comma separated)", joinInts(cfg.IntentionalCodes))
	if err != nil {
		return cfg, err
	}
	if cfg.IntentionalCodes, err = parseInts(codes); err != nil {
		return cfg, err
	}

	timeout, err := ask("  Trial timeout", cfg.Timeout.String())
	if err != nil {
		return cfg, err
	}
	if cfg.Timeout, err = time.ParseDuration(timeout); err != nil {
		return cfg, fmt.Errorf("invalid timeout %q: %w", timeout, err)
	}

	signals, err := askBool("  Count recognized signal deaths as intentional", cfg.SignalOutcome == "intentional")
	if err != nil {
		return cfg, err
	}
	cfg.SignalOutcome = "crash"
	if signals {
		cfg.SignalOutcome = "intentional"
	}

	fmt.Fprintln(out)
	return cfg, nil
}

func joinInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.Itoa(x)
	}
	return strings.Join(parts, ",")
}

func parseInts(s string) ([]int, error) {
	out := []int{}
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("invalid exit code %q", f)
		}
		out = append(out, n)
	}
	return out, nil
}

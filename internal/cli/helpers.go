package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rafaeljc/bifrost/internal/catalog"
	"github.com/rafaeljc/bifrost/internal/experiments"
	"github.com/rafaeljc/bifrost/internal/feed"
)

const loadTimeout = 30 * time.Second

// feedFlags are the two feed paths shared by assign and validate.
type feedFlags struct {
	experiments string
	segments    string
}

func (f *feedFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.experiments, "experiments", "feeds/experiments.json", "experiments feed (.json, .yaml or .yml)")
	cmd.Flags().StringVar(&f.segments, "segments", "feeds/segments.json", "segments feed (.json, .yaml or .yml)")
}

// loadService builds a service over the feed files and performs one load.
func loadService(ctx context.Context, f feedFlags, opts ...experiments.Option) (*experiments.Service, error) {
	log := slog.Default()
	svc := experiments.NewService(catalog.New(log), feed.NewFileSource(f.experiments, f.segments), log, opts...)

	ctx, cancel := context.WithTimeout(ctx, loadTimeout)
	defer cancel()

	if err := svc.LoadSegmentsAndExperiments(ctx); err != nil {
		return nil, err
	}
	return svc, nil
}

// readIdentities reads one identity per line, skipping blanks. "-" reads stdin.
func readIdentities(path string, stdin io.Reader) ([]string, error) {
	var r io.Reader = stdin
	if path != "-" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open identities file: %w", err)
		}
		defer file.Close()
		r = file
	}

	var ids []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			ids = append(ids, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read identities: %w", err)
	}
	return ids, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/frederic-klein/yapb/internal/backend"
	"github.com/frederic-klein/yapb/internal/builder"
	"github.com/frederic-klein/yapb/internal/errors"
	"github.com/frederic-klein/yapb/internal/inspect"
	"github.com/frederic-klein/yapb/internal/logging"
)

var (
	projectDir     string
	outDir         string
	configSettings []string
	verbose        bool
	format         string
	editable       bool
	requiresFor    string
	verify         bool
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "yapb",
		Short: "Yet Another Python Builder - builds sdists and wheels from pyproject.toml",
		Long: "YAPB builds source distributions, wheels and editable wheels for pure-Python " +
			"projects described by a PEP 621 pyproject.toml, optionally running a native extension build.",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&projectDir, "project", "p", ".", "Project root directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().StringArrayVarP(&configSettings, "config-setting", "C", nil, "Build setting as key=value (repeatable)")

	sdistCmd := &cobra.Command{
		Use:   "sdist",
		Short: "Build a source distribution",
		Args:  cobra.NoArgs,
		RunE:  runSdist,
	}
	wheelCmd := &cobra.Command{
		Use:   "wheel",
		Short: "Build a wheel",
		Args:  cobra.NoArgs,
		RunE:  runWheel,
	}
	editableCmd := &cobra.Command{
		Use:   "editable",
		Short: "Build an editable wheel pointing at the project tree",
		Args:  cobra.NoArgs,
		RunE:  runEditable,
	}
	for _, c := range []*cobra.Command{sdistCmd, wheelCmd, editableCmd} {
		c.Flags().StringVarP(&outDir, "out-dir", "o", "dist", "Output directory")
	}

	metadataCmd := &cobra.Command{
		Use:   "metadata",
		Short: "Write the wheel's .dist-info directory without building it",
		Args:  cobra.NoArgs,
		RunE:  runMetadata,
	}
	metadataCmd.Flags().StringVarP(&outDir, "out-dir", "o", "dist", "Output directory")
	metadataCmd.Flags().BoolVar(&editable, "editable", false, "Prepare metadata for the editable wheel")

	requiresCmd := &cobra.Command{
		Use:   "requires",
		Short: "Print the extra build requirements",
		Args:  cobra.NoArgs,
		RunE:  runRequires,
	}
	requiresCmd.Flags().StringVar(&requiresFor, "for", "wheel", "Artifact kind: wheel, sdist or editable")

	manifestCmd := &cobra.Command{
		Use:   "manifest",
		Short: "Print the resolved package layout and file manifest",
		Args:  cobra.NoArgs,
		RunE:  runManifest,
	}
	manifestCmd.Flags().StringVar(&format, "format", "yaml", "Output format: yaml or json")

	inspectCmd := &cobra.Command{
		Use:   "inspect <artifact>",
		Short: "List an sdist or wheel and print its core metadata",
		Args:  cobra.ExactArgs(1),
		RunE:  runInspect,
	}
	inspectCmd.Flags().BoolVar(&verify, "verify", false, "Check RECORD hashes and archive structure")

	rootCmd.AddCommand(sdistCmd, wheelCmd, editableCmd, metadataCmd, requiresCmd, manifestCmd, inspectCmd)
	return rootCmd
}

func commandContext(cmd *cobra.Command) context.Context {
	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}
	logger := logging.New(cmd.ErrOrStderr(), level)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return logging.WithLogger(ctx, logger)
}

// parseSettings turns -C key=value flags into config settings. A key given
// more than once becomes a list, the last value winning.
func parseSettings(flags []string) (map[string]any, error) {
	settings := make(map[string]any, len(flags))
	for _, f := range flags {
		key, value, ok := strings.Cut(f, "=")
		if !ok || key == "" {
			return nil, errors.New(errors.ErrCodeInvalidConfig, "config setting %q is not key=value", f)
		}
		switch prev := settings[key].(type) {
		case nil:
			settings[key] = value
		case string:
			settings[key] = []any{prev, value}
		case []any:
			settings[key] = append(prev, value)
		}
	}
	return settings, nil
}

type buildFunc func(ctx context.Context, b *backend.Backend, out string, settings map[string]any) (string, error)

func runBuild(cmd *cobra.Command, build buildFunc) error {
	ctx := commandContext(cmd)
	settings, err := parseSettings(configSettings)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	name, err := build(ctx, backend.New(projectDir), outDir, settings)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), filepath.Join(outDir, name))
	return nil
}

func runSdist(cmd *cobra.Command, args []string) error {
	return runBuild(cmd, func(ctx context.Context, b *backend.Backend, out string, s map[string]any) (string, error) {
		return b.BuildSdist(ctx, out, s)
	})
}

func runWheel(cmd *cobra.Command, args []string) error {
	return runBuild(cmd, func(ctx context.Context, b *backend.Backend, out string, s map[string]any) (string, error) {
		return b.BuildWheel(ctx, out, s, "")
	})
}

func runEditable(cmd *cobra.Command, args []string) error {
	return runBuild(cmd, func(ctx context.Context, b *backend.Backend, out string, s map[string]any) (string, error) {
		return b.BuildEditable(ctx, out, s, "")
	})
}

func runMetadata(cmd *cobra.Command, args []string) error {
	return runBuild(cmd, func(ctx context.Context, b *backend.Backend, out string, s map[string]any) (string, error) {
		if editable {
			return b.PrepareMetadataForBuildEditable(ctx, out, s)
		}
		return b.PrepareMetadataForBuildWheel(ctx, out, s)
	})
}

func runRequires(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	settings, err := parseSettings(configSettings)
	if err != nil {
		return err
	}

	b := backend.New(projectDir)
	var reqs []string
	switch requiresFor {
	case "wheel":
		reqs, err = b.GetRequiresForBuildWheel(ctx, settings)
	case "sdist":
		reqs, err = b.GetRequiresForBuildSdist(ctx, settings)
	case "editable":
		reqs, err = b.GetRequiresForBuildEditable(ctx, settings)
	default:
		return fmt.Errorf("unknown artifact kind %q", requiresFor)
	}
	if err != nil {
		return err
	}
	for _, r := range reqs {
		fmt.Fprintln(cmd.OutOrStdout(), r)
	}
	return nil
}

func runManifest(cmd *cobra.Command, args []string) error {
	settings, err := parseSettings(configSettings)
	if err != nil {
		return err
	}
	cfg, err := backend.ParseConfig(settings)
	if err != nil {
		return err
	}
	p, err := builder.Open(projectDir, cfg)
	if err != nil {
		return err
	}
	m, err := p.Manifest()
	if err != nil {
		return err
	}
	return encode(cmd.OutOrStdout(), format, m)
}

func runInspect(cmd *cobra.Command, args []string) error {
	a, err := inspect.Open(args[0])
	if err != nil {
		return err
	}
	if verify {
		if err := a.Verify(); err != nil {
			return err
		}
		logging.FromContext(commandContext(cmd)).Info("verified " + filepath.Base(args[0]))
	}
	report, err := a.Report()
	if err != nil {
		return err
	}
	data, err := report.YAML()
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func encode(w io.Writer, format string, v any) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encoding yaml: %w", err)
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

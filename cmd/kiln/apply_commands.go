package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"kiln/internal/content"
	"kiln/internal/fileutil"
	"kiln/internal/job"
	"kiln/internal/logging"
)

var errBinaryToTerminal = errors.New("refusing to write binary output to a terminal (use -o FILE or --force)")

func newApplyCommand(ctx *commandContext) *cobra.Command {
	var outputPath string
	var force bool
	var sha string
	var noCache bool

	cmd := &cobra.Command{
		Use:   "apply <token|step...>",
		Short: "Apply a job and write its output",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(func(s *engineSession) error {
				j, err := jobFromArgs(s.engine, args)
				if err != nil {
					return err
				}
				if cmd.Flags().Changed("sha") {
					if _, err := j.ValidateSHA(strings.TrimSpace(sha)); err != nil {
						return err
					}
				}

				cache := s.cache
				if noCache {
					cache = nil
				}
				runCtx := cmd.Context()
				key := j.CacheKey()
				result, hit, err := cache.Get(runCtx, key)
				if err != nil {
					logging.WarnWithContext(s.logger, "result cache read failed", "cli_cache_read_failed",
						logging.Error(err),
						logging.String(logging.FieldImpact, "job applied without cache"),
					)
				}
				if !hit {
					if _, err := j.Apply(runCtx); err != nil {
						return err
					}
					result = j.Content()
					if err := cache.Put(runCtx, key, result); err != nil {
						logging.WarnWithContext(s.logger, "result cache write failed", "cli_cache_write_failed",
							logging.Error(err),
							logging.String(logging.FieldImpact, "result not cached"),
						)
					}
				}
				return writeResult(cmd, result, outputPath, force)
			})
		},
	}
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write output to FILE instead of stdout")
	cmd.Flags().BoolVar(&force, "force", false, "Write binary output to a terminal anyway")
	cmd.Flags().StringVar(&sha, "sha", "", "Verify the job against this sha before applying")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Bypass the result cache")
	return cmd
}

func writeResult(cmd *cobra.Command, c *content.Content, outputPath string, force bool) error {
	data := c.Data()
	if outputPath != "" {
		if err := fileutil.WriteFileAtomic(outputPath, data, 0o644); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s to %s\n", humanize.Bytes(uint64(len(data))), outputPath)
		return nil
	}
	out := cmd.OutOrStdout()
	if !force && isTerminal(out) && looksBinary(data) {
		return errBinaryToTerminal
	}
	_, err := out.Write(data)
	return err
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func looksBinary(data []byte) bool {
	return bytes.IndexByte(data, 0) >= 0 || !utf8.Valid(data)
}

func newStoreCommand(ctx *commandContext) *cobra.Command {
	var uid string
	var name string

	cmd := &cobra.Command{
		Use:   "store <path>",
		Short: "Store a local file in the datastore and print its uid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(func(s *engineSession) error {
				opts := job.StoreOptions{UID: strings.TrimSpace(uid)}
				if name != "" {
					opts.Meta = map[string]any{content.MetaName: name}
				}
				j := s.engine.FetchFile(args[0])
				stored, err := j.Store(cmd.Context(), opts)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, stored)
				if u := j.ToFetchedJob(stored).URL(nil); u != "" {
					fmt.Fprintf(out, "url=%s\n", u)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&uid, "uid", "", "Store under this uid instead of a generated one")
	cmd.Flags().StringVar(&name, "name", "", "Override the stored file name")
	return cmd
}

func newAnalyseCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "analyse <token> <analyser> [arg...]",
		Short: "Apply a job and run an analyser over the result",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(func(s *engineSession) error {
				j, err := s.engine.Deserialize(strings.TrimSpace(args[0]))
				if err != nil {
					return fmt.Errorf("decode token: %w", err)
				}
				analyserArgs := make([]any, 0, len(args)-2)
				for _, arg := range args[2:] {
					analyserArgs = append(analyserArgs, scalarArg(arg))
				}
				value, err := j.Analyse(cmd.Context(), args[1], analyserArgs...)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, map[string]any{"analyser": args[1], "value": value})
				}
				fmt.Fprintln(cmd.OutOrStdout(), value)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

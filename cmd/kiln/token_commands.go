package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"kiln/internal/job"
	"kiln/internal/serializer"
	"kiln/internal/server"
)

func newTokenCommand(ctx *commandContext) *cobra.Command {
	var legacy bool

	cmd := &cobra.Command{
		Use:   "token <step>...",
		Short: "Encode steps into a signed job token",
		Long: "Encode steps into a job token and print it with its sha.\n\n" +
			"Each step is kind:arg,arg (for example ff:/tmp/a.txt or p:truncate,4)\n" +
			"or a JSON array such as '[\"p\",\"encode\",\"zstd\"]'.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(func(s *engineSession) error {
				arr, err := parseSteps(args)
				if err != nil {
					return err
				}
				j, err := s.engine.FromArray(arr)
				if err != nil {
					return err
				}
				token, err := encodeToken(j, legacy)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, token)
				fmt.Fprintf(out, "sha=%s\n", j.SHA())
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&legacy, "legacy", false, "Emit a Marshal-encoded token for older clients")
	return cmd
}

func encodeToken(j *job.Job, legacy bool) (string, error) {
	if !legacy {
		return j.Serialize()
	}
	arr := j.ToArray()
	items := make([]any, len(arr))
	for i, step := range arr {
		items[i] = step
	}
	raw, err := serializer.MarshalEncode(items)
	if err != nil {
		return "", fmt.Errorf("encode legacy token: %w", err)
	}
	return serializer.B64Encode(raw), nil
}

type stepView struct {
	Index        int    `json:"index"`
	Step         string `json:"step"`
	Abbreviation string `json:"abbreviation"`
	Arguments    []any  `json:"arguments"`
}

type inspectView struct {
	Steps        []stepView `json:"steps"`
	UniqueString string     `json:"unique_string"`
	SHA          string     `json:"sha"`
	CacheKey     string     `json:"cache_key"`
	URL          string     `json:"url,omitempty"`
}

func newInspectCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "inspect <token>",
		Short: "Decode a job token and show its steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(func(s *engineSession) error {
				j, err := s.engine.Deserialize(strings.TrimSpace(args[0]))
				if err != nil {
					return fmt.Errorf("decode token: %w", err)
				}
				view := buildInspectView(j)
				if jsonOutput {
					return writeJSON(cmd, view)
				}
				rows := make([][]string, 0, len(view.Steps))
				for _, step := range view.Steps {
					rows = append(rows, []string{
						strconv.Itoa(step.Index),
						step.Step,
						step.Abbreviation,
						serializer.UniqueString(step.Arguments),
					})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderTable([]string{"#", "Step", "Abbr", "Arguments"}, rows, []columnAlignment{alignRight}))
				fmt.Fprintf(out, "Unique string: %s\n", view.UniqueString)
				fmt.Fprintf(out, "SHA:           %s\n", view.SHA)
				fmt.Fprintf(out, "Cache key:     %s\n", view.CacheKey)
				if view.URL != "" {
					fmt.Fprintf(out, "URL:           %s\n", view.URL)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func buildInspectView(j *job.Job) inspectView {
	steps := j.Steps()
	view := inspectView{
		Steps:        make([]stepView, 0, len(steps)),
		UniqueString: j.UniqueString(),
		SHA:          j.SHA(),
		CacheKey:     j.CacheKey(),
		URL:          j.URL(nil),
	}
	for i, step := range steps {
		args := step.Args()
		if args == nil {
			args = []any{}
		}
		view.Steps = append(view.Steps, stepView{
			Index:        i,
			Step:         step.Kind().String(),
			Abbreviation: step.Kind().Abbreviation(),
			Arguments:    args,
		})
	}
	return view
}

func newVerifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <token> <sha>",
		Short: "Check a job token against its sha",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(func(s *engineSession) error {
				j, err := s.engine.Deserialize(strings.TrimSpace(args[0]))
				if err != nil {
					return fmt.Errorf("decode token: %w", err)
				}
				if _, err := j.ValidateSHA(strings.TrimSpace(args[1])); err != nil {
					if errors.Is(err, job.ErrNoSHAGiven) || errors.Is(err, job.ErrIncorrectSHA) {
						return fmt.Errorf("verification failed: %w", err)
					}
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "sha valid")
				return nil
			})
		},
	}
}

func newURLCommand(ctx *commandContext) *cobra.Command {
	var name string
	var host string

	cmd := &cobra.Command{
		Use:   "url <token|step...>",
		Short: "Print the signed URL for a job",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(func(s *engineSession) error {
				j, err := jobFromArgs(s.engine, args)
				if err != nil {
					return err
				}
				opts := map[string]any{}
				if cmd.Flags().Changed("name") {
					opts[server.OptName] = name
				}
				if cmd.Flags().Changed("host") {
					opts[server.OptHost] = host
				}
				u := j.URL(opts)
				if u == "" {
					return errors.New("job has no steps")
				}
				fmt.Fprintln(cmd.OutOrStdout(), u)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Override the trailing file name segment")
	cmd.Flags().StringVar(&host, "host", "", "Override server.url_host")
	return cmd
}

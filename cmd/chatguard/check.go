package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/creastat/chatguard/guardrail"
	"github.com/creastat/chatguard/subject"
)

var (
	checkSubjects []string
	checkJSON     bool
)

var checkCmd = &cobra.Command{
	Use:   "check [message]",
	Short: "check a question against the guard rails",
	Long: `Evaluate a question against the length, suspicious pattern and topic
relevance rules for the selected subjects. The message is read from stdin
when no argument is given.`,
	Example: `  $ chatguard check -s codigo "como faço merge de uma branch no git?"
  $ echo "qual a melhor receita de bolo?" | chatguard check -s dados,devops`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringSliceVarP(&checkSubjects, "subject", "s", nil, "subjects to check against (repeatable or comma separated)")
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "print the verdict as JSON")
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	message, err := messageArg(cmd, args)
	if err != nil {
		return err
	}

	catalog := subject.NewCatalog(cfg.Guardrail.SubjectContexts())
	subjects, err := catalog.Parse(checkSubjects...)
	if err != nil {
		return err
	}

	evaluator := guardrail.New(cfg.Guardrail.Dictionary(), cfg.Guardrail.Options()...)
	verdict := evaluator.Evaluate(message, subjects...)

	if checkJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(verdict)
	}

	printVerdict(verdict)
	return nil
}

func printVerdict(v guardrail.Verdict) {
	if v.Valid {
		printSuccess("accepted (%s)", v.Check)
	} else {
		printError("rejected (%s): %s", v.Check, v.Reason)
	}
	for _, sv := range v.Subjects {
		if sv.Valid {
			printInfo("%s: ok", sv.Subject)
		} else {
			printWarning("%s: %s", sv.Subject, sv.Reason)
		}
	}
}

func messageArg(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	data, err := readAll(cmd)
	if err != nil {
		return "", fmt.Errorf("failed to read message from stdin: %w", err)
	}
	return strings.TrimRight(data, "\r\n"), nil
}

func readAll(cmd *cobra.Command) (string, error) {
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok {
		if info, err := f.Stat(); err == nil && info.Mode()&os.ModeCharDevice != 0 {
			return "", fmt.Errorf("no message given")
		}
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/logship/agent/internal/reader"
	"github.com/telhawk-systems/logship/agent/pkg/output"
	"github.com/telhawk-systems/logship/common/syslog"
)

type parsedLine struct {
	Line      int    `json:"line"`
	Timestamp string `json:"timestamp,omitempty"`
	Hostname  string `json:"hostname,omitempty"`
	Component string `json:"component,omitempty"`
	Process   string `json:"process,omitempty"`
	Message   string `json:"message,omitempty"`
	Unusual   bool   `json:"unusual"`
	Error     string `json:"error,omitempty"`
}

var parseCmd = &cobra.Command{
	Use:   "parse [file]",
	Short: "Parse syslog lines and flag unusual severities",
	Long: `Parse lines from a file (or stdin) the way the collector does and print
the resulting records. Lines whose severity would raise an alert are
marked.`,
	Example: `  logship-agent parse /var/log/syslog --unusual-only
  tail -n 50 /var/log/syslog | logship-agent parse --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		unusualOnly, _ := cmd.Flags().GetBool("unusual-only")
		strict, _ := cmd.Flags().GetBool("strict")
		names, _ := cmd.Flags().GetStringSlice("unusual")

		sevs, err := syslog.ParseSeverities(names)
		if err != nil {
			return err
		}
		classifier := syslog.NewClassifier(sevs)

		in := cmd.InOrStdin()
		if len(args) == 1 && args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}

		results, err := parseLines(in, classifier, time.Now())
		if err != nil {
			return err
		}

		var shown []parsedLine
		malformed, unusual := 0, 0
		for _, r := range results {
			if r.Error != "" {
				malformed++
			}
			if r.Unusual {
				unusual++
			}
			if unusualOnly && !r.Unusual {
				continue
			}
			shown = append(shown, r)
		}

		if asJSON {
			if shown == nil {
				shown = []parsedLine{}
			}
			if err := output.JSON(shown); err != nil {
				return err
			}
		} else {
			printParsed(shown)
			output.Info("%d line(s), %d unusual, %d malformed", len(results), unusual, malformed)
		}

		if strict && malformed > 0 {
			return fmt.Errorf("%d malformed line(s)", malformed)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(parseCmd)

	parseCmd.Flags().Bool("json", false, "print records as JSON")
	parseCmd.Flags().Bool("unusual-only", false, "print only unusual records")
	parseCmd.Flags().Bool("strict", false, "exit non-zero when a line fails to parse")
	parseCmd.Flags().StringSlice("unusual", []string{"emerg", "alert", "crit", "err"}, "severities treated as unusual")
}

func parseLines(in io.Reader, classifier syslog.Classifier, now time.Time) ([]parsedLine, error) {
	var out []parsedLine
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	n := 0
	for scanner.Scan() {
		n++
		raw := scanner.Text()
		if len(raw) == 0 {
			continue
		}

		line, err := reader.Normalize(raw, now)
		if err != nil {
			out = append(out, parsedLine{Line: n, Error: err.Error()})
			continue
		}
		rec := line.Record
		out = append(out, parsedLine{
			Line:      n,
			Timestamp: rec.TimestampText,
			Hostname:  rec.Hostname,
			Component: rec.Component(),
			Process:   rec.Process,
			Message:   rec.Message,
			Unusual:   classifier.IsUnusual(rec.Severity),
		})
	}
	return out, scanner.Err()
}

func printParsed(lines []parsedLine) {
	table := output.NewTable([]string{"LINE", "TIMESTAMP", "HOST", "COMPONENT", "PROCESS", "MESSAGE"})
	for _, l := range lines {
		if l.Error != "" {
			output.Warn("line %d: %s", l.Line, l.Error)
			continue
		}
		message := l.Message
		if l.Unusual {
			message = output.Highlight(message)
		}
		table.AddRow(fmt.Sprint(l.Line), l.Timestamp, l.Hostname, l.Component, l.Process, message)
	}
	table.Render()
}

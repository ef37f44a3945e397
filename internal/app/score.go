package app

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"horse.fit/markwatch/internal/scan"
	"horse.fit/markwatch/internal/similarity"
	"horse.fit/markwatch/internal/textnorm"
)

type scoreReport struct {
	Term     textnorm.Forms       `json:"term"`
	Name     textnorm.Forms       `json:"name"`
	Scores   similarity.Breakdown `json:"scores"`
	Accepted bool                 `json:"accepted"`
}

func runScore(args []string) int {
	fs := flag.NewFlagSet("score", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	term := fs.String("term", "", "Monitored mark name (or first positional argument)")
	name := fs.String("name", "", "Bulletin mark name (or second positional argument)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	left, right := strings.TrimSpace(*term), strings.TrimSpace(*name)
	rest := fs.Args()
	if left == "" && len(rest) > 0 {
		left, rest = rest[0], rest[1:]
	}
	if right == "" && len(rest) > 0 {
		right = rest[0]
	}
	if left == "" || right == "" {
		fmt.Fprintln(os.Stderr, "usage: markwatch score <term> <name>")
		return 2
	}

	out, err := json.MarshalIndent(explainNames(left, right), "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Encode scores failed: %v\n", err)
		return 1
	}
	fmt.Println(string(out))
	return 0
}

// explainNames prepares both names the way a scan does and reports every
// score component plus the acceptance decision.
func explainNames(term, name string) scoreReport {
	termForms := textnorm.Prepare(term)
	nameForms := textnorm.Prepare(name)
	breakdown := similarity.Explain(termForms.Raw, nameForms.Raw, termForms.Normalized, nameForms.Normalized)
	return scoreReport{
		Term:     termForms,
		Name:     nameForms,
		Scores:   breakdown,
		Accepted: scan.Accept(breakdown.Score, breakdown.Positional, termForms.Light, nameForms.Light),
	}
}

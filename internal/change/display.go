package change

import (
	"fmt"

	"cri/internal/diff"
	"cri/internal/validate"
)

func (w *Workflow) showDiff(d *diff.Diff) {
	if d.Empty() {
		fmt.Fprintln(w.out, "No changes.")
		return
	}
	fmt.Fprint(w.out, diff.Colorize(d.Unified(), w.color))
	fmt.Fprintf(w.out, "%s\n", d.Stats)
}

func (w *Workflow) showValidation(label string, r validate.Result) {
	fmt.Fprintf(w.out, "%s: %s\n", label, r.Summary())
	for _, d := range r.Diagnostics {
		fmt.Fprintf(w.out, "  %s\n", d)
	}
}

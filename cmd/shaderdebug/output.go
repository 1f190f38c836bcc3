package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"shaderdebug/internal/debugger"
	"shaderdebug/internal/interp"
	"shaderdebug/internal/value"
)

var (
	newColor     = color.New(color.FgGreen)
	changedColor = color.New(color.FgYellow)
	goneColor    = color.New(color.FgRed, color.Faint)
	headColor    = color.New(color.Bold)
)

// changeKind classifies a change for display.
type changeKind int

const (
	changeNew changeKind = iota
	changeUpdated
	changeGone
)

func isEmpty(v value.Value) bool {
	return v.Type == value.Unknown && len(v.Members) == 0
}

func classify(c interp.Change) changeKind {
	switch {
	case isEmpty(c.After):
		return changeGone
	case isEmpty(c.Before):
		return changeNew
	default:
		return changeUpdated
	}
}

// formatState writes one state as a header line followed by its changes
// with the names padded to a common width.
func formatState(w io.Writer, st debugger.ShaderDebugState) {
	where := "end"
	if st.NextInstruction >= 0 {
		where = fmt.Sprintf("@%d", st.NextInstruction)
	}
	head := fmt.Sprintf("#%-4d %s", st.Step, where)
	if len(st.Callstack) > 0 {
		head += "  " + strings.Join(st.Callstack, " > ")
	}
	if st.Flags != 0 {
		head += "  [" + st.Flags.String() + "]"
	}
	fmt.Fprintln(w, headColor.Sprint(head))

	names := make([]string, len(st.Changes))
	width := 0
	for i, c := range st.Changes {
		names[i] = fmt.Sprintf("%%%d", c.Id)
		width = max(width, runewidth.StringWidth(names[i]))
	}
	for i, c := range st.Changes {
		name := runewidth.FillRight(names[i], width)
		switch classify(c) {
		case changeNew:
			fmt.Fprintf(w, "    %s = %s\n", name, newColor.Sprint(c.After.String()))
		case changeUpdated:
			fmt.Fprintf(w, "    %s = %s -> %s\n", name, c.Before.String(), changedColor.Sprint(c.After.String()))
		default:
			fmt.Fprintf(w, "    %s %s\n", name, goneColor.Sprint("out of scope"))
		}
	}
}

func formatVariables(w io.Writer, vars []debugger.Variable) {
	if len(vars) == 0 {
		fmt.Fprintln(w, "    (no source variables)")
		return
	}
	width := 0
	for _, v := range vars {
		width = max(width, runewidth.StringWidth(v.Name))
	}
	for _, v := range vars {
		fmt.Fprintf(w, "    %s = %s\n", runewidth.FillRight(v.Name, width), v.Value.String())
	}
}

package ir

import (
	"fmt"
	"io"
)

// Dump writes a human-readable listing of p. Instruction indices are
// function-relative, matching execution points.
func Dump(w io.Writer, p *Program) error {
	if w == nil || p == nil {
		return nil
	}
	fmt.Fprintf(w, "program %s stage=%s maxid=%d\n", p.Name, p.Stage, p.MaxId)

	if len(p.Globals) > 0 {
		fmt.Fprintf(w, "globals=%d\n", len(p.Globals))
		for i := range p.Globals {
			g := &p.Globals[i]
			fmt.Fprintf(w, "  %%%d: %s %s name=%s\n", g.Id, g.AddrSpace, g.Type, g.Name)
		}
	}
	if len(p.Resources) > 0 {
		fmt.Fprintf(w, "resources=%d\n", len(p.Resources))
		for i := range p.Resources {
			r := &p.Resources[i]
			fmt.Fprintf(w, "  %s %s %s space=%d reg=%d count=%d\n", r.Class, r.Kind, r.Name, r.Space, r.LowerBound, r.Count)
		}
	}

	fmt.Fprintf(w, "funcs=%d\n", len(p.Functions))
	for fi := range p.Functions {
		f := &p.Functions[fi]
		entry := ""
		if fi == p.EntryPoint {
			entry = " entry"
		}
		fmt.Fprintf(w, "fn %s%s:\n", f.Name, entry)
		for bi := range f.Blocks {
			bb := &f.Blocks[bi]
			name := bb.Name
			if name == "" {
				name = "_"
			}
			fmt.Fprintf(w, "  bb%d (%s) preds=%v:\n", bi, name, bb.Preds)
			for i := bb.Start; i < bb.End && i < len(f.Instructions); i++ {
				fmt.Fprintf(w, "    %4d  %s\n", i, f.Instructions[i].String())
			}
		}
	}
	return nil
}

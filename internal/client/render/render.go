// Package render 把快照渲染成终端文本
package render

import (
	"fmt"
	"io"
	"text/tabwriter"

	"powerhouse-manager/internal/model"
)

// Tree 以缩进树的形式输出层级，电杆后附带挂接的账户数
func Tree(w io.Writer, phs []model.Powerhouse) {
	if len(phs) == 0 {
		fmt.Fprintln(w, "(no powerhouses)")
		return
	}
	for _, p := range phs {
		counts := poleCounts(p)
		fmt.Fprintf(w, "%s (%d accounts)\n", p.Name, len(p.Accounts))
		for fi, f := range p.Feeders {
			lastF := fi == len(p.Feeders)-1
			fmt.Fprintf(w, "%s%s\n", branch(lastF), f.Name)
			for ti, t := range f.Transformers {
				lastT := ti == len(f.Transformers)-1
				fmt.Fprintf(w, "%s%s%s\n", indent(lastF), branch(lastT), t.Name)
				for pi, pl := range t.Poles {
					lastP := pi == len(t.Poles)-1
					n := counts[[3]string{f.Name, t.Name, pl.Name}]
					fmt.Fprintf(w, "%s%s%s%s (%d)\n", indent(lastF), indent(lastT), branch(lastP), pl.Name, n)
				}
			}
		}
	}
}

func branch(last bool) string {
	if last {
		return "└── "
	}
	return "├── "
}

func indent(last bool) string {
	if last {
		return "    "
	}
	return "│   "
}

func poleCounts(p model.Powerhouse) map[[3]string]int {
	counts := make(map[[3]string]int)
	for _, a := range p.Accounts {
		counts[[3]string{a.Feeder, a.Transformer, a.Pole}]++
	}
	return counts
}

// Accounts 以表格输出账户
func Accounts(w io.Writer, accounts []model.Account) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "POWERHOUSE\tID\tNAME\tPHONE\tFEEDER\tTRANSFORMER\tPOLE\tREMARK")
	for _, a := range accounts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			a.Powerhouse, a.ID, a.Name, a.Phone, a.Feeder, a.Transformer, a.Pole, a.Remark)
	}
	tw.Flush()
}

// Account 输出单个账户的详情
func Account(w io.Writer, a model.Account) {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%s\n", a.ID)
	fmt.Fprintf(tw, "Name:\t%s\n", a.Name)
	fmt.Fprintf(tw, "Phone:\t%s\n", a.Phone)
	fmt.Fprintf(tw, "Location:\t%s / %s / %s / %s\n", a.Powerhouse, a.Feeder, a.Transformer, a.Pole)
	if a.Remark != "" {
		fmt.Fprintf(tw, "Remark:\t%s\n", a.Remark)
	}
	tw.Flush()
}

// Users 以表格输出用户
func Users(w io.Writer, users []model.User) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "USERNAME\tROLE\tPOWERHOUSE")
	for _, u := range users {
		ph := u.Powerhouse
		if ph == "" {
			ph = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", u.Username, u.Role, ph)
	}
	tw.Flush()
}

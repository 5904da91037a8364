package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/encodeous/ospf6rde/core"
	"github.com/encodeous/ospf6rde/imsg"
	"github.com/encodeous/ospf6rde/lsa"
	"github.com/encodeous/ospf6rde/state"
	"github.com/spf13/cobra"
)

var ctlSocket string

var inspectQueries = map[string]imsg.Type{
	"database": imsg.CtlShowDatabase,
	"rib":      imsg.CtlShowRib,
	"summary":  imsg.CtlShowSummary,
}

var inspectCmd = &cobra.Command{
	Use:       "inspect database|rib|summary",
	Aliases:   []string{"i"},
	Short:     "Inspects the state of a running engine",
	ValidArgs: []string{"database", "rib", "summary"},
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	Run: func(cmd *cobra.Command, args []string) {
		msgs, err := core.CtlQuery(ctlSocket, inspectQueries[args[0]])
		if err != nil {
			fmt.Println("Error:", err.Error())
			return
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for _, m := range msgs {
			if err := printCtl(w, m); err != nil {
				fmt.Println("Error:", err.Error())
				return
			}
		}
		_ = w.Flush()
	},
	GroupID: "ny",
}

func printCtl(w io.Writer, m *imsg.Msg) error {
	switch m.Type {
	case imsg.CtlSummary:
		s, err := imsg.DecodeCtlSummary(m)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Router ID:\t%s\n", lsa.IDString(s.RouterID))
		fmt.Fprintf(w, "Uptime:\t%s\n", s.Uptime)
		fmt.Fprintf(w, "SPF delay:\t%s\n", s.SpfDelay)
		fmt.Fprintf(w, "SPF hold:\t%s\n", s.SpfHold)
		fmt.Fprintf(w, "External LSAs:\t%d\n", s.NumExtLSA)
		fmt.Fprintf(w, "Areas:\t%d\n", s.NumArea)
	case imsg.CtlArea:
		a, err := imsg.DecodeCtlArea(m)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "\nArea %s", lsa.IDString(a.AreaID))
		if a.Stub {
			fmt.Fprint(w, " (stub)")
		}
		fmt.Fprintf(w, "\n  interfaces %d, neighbors %d, full %t, LSAs %d, SPF runs %d\n",
			a.NumIface, a.NumNbr, a.Active, a.NumLSA, a.NumSpfCalc)
	case imsg.CtlLSA:
		rec, err := imsg.DecodeCtlLSA(m)
		if err != nil {
			return err
		}
		hdr, err := lsa.DecodeHeader(rec.LSA)
		if err != nil {
			return err
		}
		where := ""
		if rec.Scope == lsa.ScopeLink {
			where = fmt.Sprintf("if %d", rec.IfIndex)
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%d\t0x%08x\t0x%04x\n", rec.Scope, where, hdr.Key(), hdr.Age, hdr.SeqNum, hdr.Checksum)
	case imsg.CtlRib:
		r, err := imsg.DecodeCtlRib(m)
		if err != nil {
			return err
		}
		dest := r.Prefix.String()
		if core.DestType(r.DestType) == core.DestRouter {
			dest = lsa.IDString(r.RouterID)
		}
		nh := r.Nexthop.String()
		if r.Flags&imsg.RibConnected != 0 {
			nh = "connected"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s%%%d\t%d\t%s\t%s\n", dest, core.DestType(r.DestType), core.PathType(r.PathType),
			nh, r.IfIndex, r.Cost, lsa.IDString(r.AreaID), r.Uptime)
	default:
		return fmt.Errorf("unexpected reply %s", m.Type)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().StringVarP(&ctlSocket, "socket", "s", state.ControlSocket, "control socket of the engine")
}

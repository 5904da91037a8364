package cmd

import (
	"github.com/encodeous/ospf6rde/core"
	"github.com/encodeous/ospf6rde/state"
	"github.com/spf13/cobra"
)

var logPath string

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the route decision engine",
	Long: `This will connect to the adjacency engine and the parent process over their sockets and run until either goes away.
Programming routes with the netlink backend requires CAP_NET_ADMIN.`,
	Run: func(cmd *cobra.Command, args []string) {
		verbose, _ := cmd.Flags().GetBool("verbose")
		err := core.Bootstrap(state.ConfigPath, logPath, verbose)
		if err != nil {
			panic(err)
		}
	},
	GroupID: "ny",
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolP("verbose", "v", false, "Verbose output")
	runCmd.Flags().StringVarP(&logPath, "log-file", "l", "", "Also write logs to this file")
	runCmd.Flags().BoolVarP(&state.DBG_log_spf, "lspf", "s", false, "Write SPF runs to console")
	runCmd.Flags().BoolVarP(&state.DBG_log_flood, "lflood", "f", false, "Write flooding decisions to console")
	runCmd.Flags().BoolVarP(&state.DBG_log_rib, "lrib", "r", false, "Outputs route table changes to the console")
	runCmd.Flags().BoolVarP(&state.DBG_debug, "pprof", "p", false, "Serve pprof and expvar on 127.0.0.1:6060")
}

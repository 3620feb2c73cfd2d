package cmd

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"pledge/pkg/resthttp"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/yiplee/structs"
)

// loanRow printed columns of a remote loan
type loanRow struct {
	ID          uint64 `json:"id"`
	State       string `json:"state"`
	Borrower    string `json:"borrower"`
	Lender      string `json:"lender"`
	Balance     string `json:"balance"`
	BalancePaid string `json:"balance_paid"`
	DueDate     int64  `json:"due_date"`
}

var loansCmd = &cobra.Command{
	Use:   "loans",
	Short: "list loans of a remote pledge server",
	Run: func(cmd *cobra.Command, args []string) {
		host, _ := cmd.Flags().GetString("host")
		archived, _ := cmd.Flags().GetBool("archived")

		query := map[string]string{}
		for _, name := range []string{"state", "borrower", "lender"} {
			if v, _ := cmd.Flags().GetString(name); v != "" {
				query[name] = v
			}
		}

		if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 {
			query["limit"] = cast.ToString(limit)
		}

		path := "/api/loans"
		if archived {
			path = "/api/archives"
		}

		var rows []loanRow
		request := resthttp.Request(cmd.Context()).SetQueryParams(query)
		if _, err := resthttp.Execute(request, http.MethodGet, strings.TrimSuffix(host, "/")+path, nil, &rows); err != nil {
			cmd.PrintErrln("list loans:", err)
			return
		}

		for _, row := range rows {
			fields := structs.Map(row)
			keys := make([]string, 0, len(fields))
			for k := range fields {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			parts := make([]string, 0, len(keys))
			for _, k := range keys {
				parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
			}

			cmd.Println(strings.Join(parts, " "))
		}
	},
}

func init() {
	rootCmd.AddCommand(loansCmd)

	loansCmd.Flags().String("host", "http://localhost:9000", "pledge server")
	loansCmd.Flags().Bool("archived", false, "list the archive instead of live loans")
	loansCmd.Flags().String("state", "", "active, repaid or defaulted")
	loansCmd.Flags().String("borrower", "", "borrower address")
	loansCmd.Flags().String("lender", "", "lender address")
	loansCmd.Flags().Int("limit", 0, "max loans")
}

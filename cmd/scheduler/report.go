package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"market_etl/internal/feature/schedule/domain/entity"
	scheduleusecase "market_etl/internal/feature/schedule/usecase"
)

// printStatus はエントリごとの最終実行情報を表形式で出力します。
func printStatus(w io.Writer, states map[string]entity.State) error {
	keys := make([]string, 0, len(states))
	for k := range states {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	table := tablewriter.NewWriter(w)
	table.Header("Entry", "Last Run", "Status", "Rows Added", "Error")
	for _, k := range keys {
		st := states[k]
		if err := table.Append([]string{
			k,
			st.LastRunAt.UTC().Format(time.RFC3339),
			string(st.LastStatus),
			strconv.Itoa(st.RowsAdded),
			st.LastError,
		}); err != nil {
			return err
		}
	}
	return table.Render()
}

// printSummary は1パスの結果を1行ずつ出力します。
func printSummary(w io.Writer, summary scheduleusecase.PassSummary) {
	for _, r := range summary.Results {
		line := fmt.Sprintf("%-20s %-12s rows_added=%d", r.Key, r.Status, r.RowsAdded)
		if r.Err != nil {
			line += " error=" + r.Err.Error()
		}
		fmt.Fprintln(w, line)
	}
}

package portfolio

import (
	"encoding/csv"
	"io"

	"github.com/Jorgeluia82/inversiones/internal/model"
)

// historyCSVHeader is the fixed column set of the history export.
var historyCSVHeader = []string{
	"fecha", "tipo_general", "tipo", "empresa", "detalle",
	"monto_cambio_capital", "shares", "price",
}

// WriteHistoryCSV writes unified history events as UTF-8 CSV, header row
// first, one row per event in the given order. Share and price columns are
// blank for cash events, which carry neither.
func WriteHistoryCSV(w io.Writer, events []model.HistoryEvent) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(historyCSVHeader); err != nil {
		return err
	}

	for _, e := range events {
		shares, price := "", ""
		if e.Kind != model.KindCash {
			if !e.Shares.IsZero() {
				shares = e.Shares.StringFixed(4)
			}
			price = e.Price.StringFixed(2)
		}
		row := []string{
			e.Timestamp.Format(model.TimestampLayout),
			e.Kind,
			e.Type,
			e.Company,
			e.Detail,
			e.CapitalDelta.StringFixed(2),
			shares,
			price,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

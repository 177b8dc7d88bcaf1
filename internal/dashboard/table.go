package dashboard

import "immun/internal/shared/models"

type Column string

const (
	ColumnUserID           Column = "User ID"
	ColumnVaccineName      Column = "Vaccine Name"
	ColumnDateAdministered Column = "Date Administered"
	ColumnNextDueDate      Column = "Next Due Date"
	ColumnProvider         Column = "Provider"
	ColumnDocument         Column = "Document"
	ColumnCreatedAt        Column = "Created At"
)

const documentLinkText = "View Document"

var (
	userColumns = []Column{
		ColumnVaccineName, ColumnDateAdministered, ColumnNextDueDate, ColumnProvider, ColumnDocument,
	}
	adminColumns = []Column{
		ColumnUserID, ColumnVaccineName, ColumnDateAdministered, ColumnNextDueDate,
		ColumnProvider, ColumnDocument, ColumnCreatedAt,
	}
)

// Cell is one rendered table value. Href is set for link cells.
type Cell struct {
	Text string
	Href string
}

type Row struct {
	RecordID models.ID
	Cells    []Cell
}

// Table is the rendered record list, one row per record in list order.
type Table struct {
	Columns []Column
	Rows    []Row
}

// Empty reports whether there are no rows to show.
func (t Table) Empty() bool { return len(t.Rows) == 0 }

// buildTable renders records for the given columns. documentURL resolves the
// link target of the Document column.
func buildTable(columns []Column, records []models.ImmunizationRecord, f Formatter, documentURL func(models.ID) string) Table {
	t := Table{Columns: columns, Rows: make([]Row, 0, len(records))}
	for _, r := range records {
		row := Row{RecordID: r.ID, Cells: make([]Cell, len(columns))}
		for i, col := range columns {
			row.Cells[i] = renderCell(col, r, f, documentURL)
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func renderCell(col Column, r models.ImmunizationRecord, f Formatter, documentURL func(models.ID) string) Cell {
	switch col {
	case ColumnUserID:
		return Cell{Text: r.UserID.String()}
	case ColumnVaccineName:
		return Cell{Text: r.VaccineName}
	case ColumnDateAdministered:
		return Cell{Text: f.Date(r.DateAdministered)}
	case ColumnNextDueDate:
		return Cell{Text: f.OptionalDate(r.NextDueDate)}
	case ColumnProvider:
		return Cell{Text: f.Text(r.Provider)}
	case ColumnDocument:
		return Cell{Text: documentLinkText, Href: documentURL(r.ID)}
	case ColumnCreatedAt:
		return Cell{Text: f.DateTime(r.CreatedAt.Time)}
	}
	return Cell{}
}

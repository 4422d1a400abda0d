package export

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kinship-crm/kinship/pkg/common"
)

type sheet struct {
	name    string
	headers []string
	rows    [][]any
}

// Workbook renders d as an XLSX file. Every sheet has a styled, frozen
// header row.
func Workbook(d Dump) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}

	sheets := buildSheets(d)
	for i, sh := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sh.name); err != nil {
				return nil, err
			}
		} else if _, err := f.NewSheet(sh.name); err != nil {
			return nil, fmt.Errorf("create sheet %s: %w", sh.name, err)
		}
		if err := writeSheet(f, sh, headerStyle); err != nil {
			return nil, fmt.Errorf("write sheet %s: %w", sh.name, err)
		}
	}
	f.SetActiveSheet(0)

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, sh sheet, headerStyle int) error {
	header := make([]any, len(sh.headers))
	for i, h := range sh.headers {
		header[i] = h
	}
	if err := f.SetSheetRow(sh.name, "A1", &header); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(sh.headers), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sh.name, "A1", last, headerStyle); err != nil {
		return err
	}

	for i, row := range sh.rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sh.name, cell, &row); err != nil {
			return err
		}
	}

	lastCol, err := excelize.ColumnNumberToName(len(sh.headers))
	if err != nil {
		return err
	}
	if err := f.SetColWidth(sh.name, "A", lastCol, 18); err != nil {
		return err
	}
	return f.SetPanes(sh.name, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func buildSheets(d Dump) []sheet {
	names := make(map[int64]string, len(d.Persons))
	for _, p := range d.Persons {
		names[p.ID] = p.FullName()
	}
	tagNames := make(map[int64]string, len(d.Tags))
	for _, t := range d.Tags {
		tagNames[t.ID] = t.Name
	}
	groupNames := make(map[int64]string, len(d.Groups))
	for _, g := range d.Groups {
		groupNames[g.ID] = g.Name
	}
	typeNames := make(map[int64]string, len(d.RelationshipTypes))
	for _, t := range d.RelationshipTypes {
		typeNames[t.ID] = t.Name
	}

	persons := sheet{
		name:    "Persons",
		headers: []string{"ID", "First name", "Last name", "Nickname", "Birthday", "Emails", "Phones", "Addresses", "Tags", "Groups", "Notes", "Owner"},
	}
	for _, p := range d.Persons {
		persons.rows = append(persons.rows, []any{
			p.ID, p.FirstName, p.LastName, p.Nickname, dateCell(p.Birthday),
			contactsCell(p.Emails), contactsCell(p.Phones), contactsCell(p.Addresses),
			joinNames(p.TagIDs, tagNames), joinNames(p.GroupIDs, groupNames), p.Notes, p.IsOwner,
		})
	}

	rels := sheet{
		name:    "Relationships",
		headers: []string{"ID", "Person A", "Type", "Person B", "Strength", "Since", "Notes", "Auto created"},
	}
	for _, r := range d.Relationships {
		rels.rows = append(rels.rows, []any{
			r.ID, names[r.PersonAID], typeNames[r.RelationshipTypeID], names[r.PersonBID],
			intCell(r.Strength), dateCell(r.StartDate), r.Notes, r.AutoCreated,
		})
	}

	types := sheet{
		name:    "Relationship types",
		headers: []string{"ID", "Name", "Inverse name", "Category", "Symmetric", "Auto inverse"},
	}
	for _, t := range d.RelationshipTypes {
		types.rows = append(types.rows, []any{t.ID, t.Name, t.InverseName, t.Category, t.IsSymmetric, t.AutoCreateInverse})
	}

	anecdotes := sheet{
		name:    "Anecdotes",
		headers: []string{"ID", "Title", "Type", "Date", "Location", "Persons", "Tags", "Content"},
	}
	for _, a := range d.Anecdotes {
		anecdotes.rows = append(anecdotes.rows, []any{
			a.ID, a.Title, a.AnecdoteType, dateCell(a.Date), a.Location,
			joinNames(a.PersonIDs, names), joinNames(a.TagIDs, tagNames), a.Content,
		})
	}

	photos := sheet{
		name:    "Photos",
		headers: []string{"ID", "File", "Caption", "Taken", "Location", "Persons", "Description"},
	}
	for _, p := range d.Photos {
		photos.rows = append(photos.rows, []any{
			p.ID, p.FileKey, p.Caption, dateCell(p.DateTaken), p.Location, joinNames(p.PersonIDs, names), p.AIDescription,
		})
	}

	jobs := sheet{
		name:    "Employments",
		headers: []string{"ID", "Person", "Company", "Title", "Department", "Start", "End", "Current"},
	}
	for _, e := range d.Employments {
		jobs.rows = append(jobs.rows, []any{
			e.ID, names[e.PersonID], e.Company, e.Title, e.Department, dateCell(e.StartDate), dateCell(e.EndDate), e.IsCurrent,
		})
	}

	tags := sheet{name: "Tags", headers: []string{"ID", "Name", "Color", "Description"}}
	for _, t := range d.Tags {
		tags.rows = append(tags.rows, []any{t.ID, t.Name, t.Color, t.Description})
	}

	groups := sheet{name: "Groups", headers: []string{"ID", "Name", "Parent", "Color", "Description"}}
	for _, g := range d.Groups {
		parent := ""
		if g.ParentID != nil {
			parent = groupNames[*g.ParentID]
		}
		groups.rows = append(groups.rows, []any{g.ID, g.Name, parent, g.Color, g.Description})
	}

	return []sheet{persons, rels, types, anecdotes, photos, jobs, tags, groups}
}

func dateCell(d *common.Date) string {
	if d == nil {
		return ""
	}
	return d.String()
}

func intCell(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func contactsCell(entries []common.ContactEntry) string {
	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = e.Label + ": " + e.Value
	}
	return strings.Join(parts, "\n")
}

func joinNames(ids []int64, names map[int64]string) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		if n, ok := names[id]; ok {
			parts = append(parts, n)
		}
	}
	return strings.Join(parts, ", ")
}

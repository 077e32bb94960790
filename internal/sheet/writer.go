package sheet

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"mwlister/internal/models"
)

const maxImageCells = 8

type Writer struct {
	templatePath string
	sheetName    string
	logger       *slog.Logger
}

func NewWriter(templatePath, sheetName string, logger *slog.Logger) *Writer {
	return &Writer{
		templatePath: templatePath,
		sheetName:    sheetName,
		logger:       logger.With("component", "sheet"),
	}
}

// Write fills the template with the upload rows and saves the result to
// outputPath. The template keeps its formatting and any rows it already
// contains; new rows are appended after the last non-empty row.
func (w *Writer) Write(outputPath string, rows []*models.UploadRow) error {
	f, err := excelize.OpenFile(w.templatePath)
	if err != nil {
		return fmt.Errorf("failed to open template %s: %w", w.templatePath, err)
	}
	defer f.Close()

	schema, err := Resolve(f, w.sheetName)
	if errors.Is(err, ErrNoHeader) {
		w.logger.Warn("template header not found, using minimal layout", "error", err)
		schema, err = createMinimalSheet(f)
	}
	if err != nil {
		return err
	}

	if err := w.ensureColumns(f, schema); err != nil {
		return err
	}

	start, err := firstEmptyRow(f, schema)
	if err != nil {
		return err
	}

	for i, row := range rows {
		if err := w.writeRow(f, schema, start+i, row); err != nil {
			return err
		}
	}

	if err := f.SaveAs(outputPath); err != nil {
		return fmt.Errorf("failed to save spreadsheet %s: %w", outputPath, err)
	}

	w.logger.Info("spreadsheet written", "path", outputPath, "rows", len(rows))
	return nil
}

// ensureColumns appends header cells for any canonical column the
// template is missing, then refreshes the image column list.
func (w *Writer) ensureColumns(f *excelize.File, schema *Schema) error {
	for _, label := range requiredColumns {
		if _, ok := schema.Columns[label]; ok {
			continue
		}
		schema.MaxCol++
		cell, err := excelize.CoordinatesToCellName(schema.MaxCol, schema.HeaderRow)
		if err != nil {
			return err
		}
		if err := f.SetCellStr(schema.Sheet, cell, label); err != nil {
			return err
		}
		schema.Columns[label] = schema.MaxCol
		w.logger.Debug("appended missing column", "label", label, "col", schema.MaxCol)
	}
	sort.Ints(schema.ImageCols)
	return nil
}

func firstEmptyRow(f *excelize.File, schema *Schema) (int, error) {
	rows, err := f.GetRows(schema.Sheet)
	if err != nil {
		return 0, err
	}

	r := schema.HeaderRow + 1
	for ; r <= len(rows); r++ {
		empty := true
		for _, cell := range rows[r-1] {
			if strings.TrimSpace(cell) != "" {
				empty = false
				break
			}
		}
		if empty {
			return r, nil
		}
	}
	return r, nil
}

func (w *Writer) writeRow(f *excelize.File, schema *Schema, r int, row *models.UploadRow) error {
	set := func(label string, value any) error {
		col, ok := schema.Columns[label]
		if !ok {
			return nil
		}
		cell, err := excelize.CoordinatesToCellName(col, r)
		if err != nil {
			return err
		}
		return f.SetCellValue(schema.Sheet, cell, value)
	}

	price, _ := row.Price.Float64()

	fields := []struct {
		label string
		value any
	}{
		{ColCategory, row.CategoryID},
		{ColName, row.Name},
		{ColDesc, row.Description},
		{ColBrand, row.Brand},
		{ColPrice, price},
		{ColStock, row.Stock},
		{ColSKU, row.SKU},
		{ColWeight, row.WeightGrams},
		{ColLength, row.LengthCM},
		{ColWidth, row.WidthCM},
		{ColHeight, row.HeightCM},
	}
	for _, fv := range fields {
		if err := set(fv.label, fv.value); err != nil {
			return err
		}
	}

	urls := row.ImageURLs
	if len(urls) > maxImageCells {
		urls = urls[:maxImageCells]
	}

	if len(schema.ImageCols) > 0 {
		for i, col := range schema.ImageCols {
			if i >= len(urls) {
				break
			}
			cell, err := excelize.CoordinatesToCellName(col, r)
			if err != nil {
				return err
			}
			if err := f.SetCellStr(schema.Sheet, cell, urls[i]); err != nil {
				return err
			}
		}
		return nil
	}
	return set(ColPhotos, strings.Join(urls, ","))
}

// createMinimalSheet writes the canonical header onto a "Template"
// sheet, creating it when the workbook has none. Existing cells in the
// header row are overwritten; rows below stay as they are so appends
// land after them.
func createMinimalSheet(f *excelize.File) (*Schema, error) {
	const name = "Template"

	if idx, err := f.GetSheetIndex(name); err != nil || idx < 0 {
		if _, err := f.NewSheet(name); err != nil {
			return nil, err
		}
	}

	schema := &Schema{
		Sheet:     name,
		HeaderRow: 1,
		Columns:   make(map[string]int),
	}
	for i, label := range requiredColumns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellStr(name, cell, label); err != nil {
			return nil, err
		}
		schema.Columns[label] = i + 1
	}
	schema.MaxCol = len(requiredColumns)
	return schema, nil
}

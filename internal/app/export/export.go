package export

import (
	"fmt"
	"io"
	"time"

	"github.com/tealeg/xlsx"

	"ai-subtitler/internal/app/model"
)

var header = []string{
	"Job ID", "Owner", "File Name", "File Size", "File Type", "Language",
	"Status", "Progress", "Download URL", "Error", "Created At", "Updated At",
}

// Workbook renders jobs as a single-sheet spreadsheet.
func Workbook(jobs []*model.ConversionJob) (*xlsx.File, error) {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Jobs")
	if err != nil {
		return nil, fmt.Errorf("failed to add sheet: %w", err)
	}

	headerRow := sheet.AddRow()
	for _, title := range header {
		headerRow.AddCell().Value = title
	}

	for _, j := range jobs {
		row := sheet.AddRow()
		row.AddCell().Value = j.ID
		row.AddCell().Value = j.UserID
		row.AddCell().Value = j.FileName
		row.AddCell().SetInt64(j.FileSize)
		row.AddCell().Value = j.FileType
		row.AddCell().Value = j.Language
		row.AddCell().Value = string(j.Status)
		row.AddCell().SetInt(j.Progress)
		row.AddCell().Value = deref(j.DownloadURL)
		row.AddCell().Value = deref(j.Error)
		row.AddCell().Value = j.CreatedAt.UTC().Format(time.RFC3339)
		row.AddCell().Value = j.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return file, nil
}

// ToExcel writes jobs to outputFilePath.
func ToExcel(jobs []*model.ConversionJob, outputFilePath string) error {
	file, err := Workbook(jobs)
	if err != nil {
		return err
	}
	if err := file.Save(outputFilePath); err != nil {
		return fmt.Errorf("failed to save %s: %w", outputFilePath, err)
	}
	return nil
}

// WriteExcel streams the workbook to w.
func WriteExcel(w io.Writer, jobs []*model.ConversionJob) error {
	file, err := Workbook(jobs)
	if err != nil {
		return err
	}
	if err := file.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

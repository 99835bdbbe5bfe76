// Package report renders infringement check results as PDF documents.
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/go-pdf/fpdf"
	"github.com/ipsvault/ips/internal/filex"
	"github.com/ipsvault/ips/internal/server/models"
)

const title = "Infringement Check Report"

var riskLabels = map[string]string{
	models.RiskHigh:   "High",
	models.RiskMedium: "Medium",
	models.RiskLow:    "Low",
}

// Render writes r as a single PDF document to w.
func Render(w io.Writer, r *models.CheckResult) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(title, true)
	pdf.SetCreator("ips", true)
	pdf.SetCreationDate(r.CreatedAt)
	pdf.SetModificationDate(r.CreatedAt)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 12, title, "", 1, "C", false, 0, "")
	pdf.Ln(4)

	field := func(label, value string) {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(40, 8, label, "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 8, tr(value), "", "L", false)
	}

	field("Report ID:", strconv.FormatInt(r.ID, 10))
	field("Date:", r.CreatedAt.UTC().Format("2006-01-02 15:04:05 MST"))
	field("Checked URL:", r.URL)
	field("Risk level:", riskLabel(r.RiskLevel))
	field("Recommendation:", r.Recommendation)
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "B", 13)
	pdf.CellFormat(0, 10, "Infringement evidence", "", 1, "L", false, 0, "")

	if len(r.InfringementEvidence) == 0 {
		pdf.SetFont("Helvetica", "I", 11)
		pdf.CellFormat(0, 8, "No matching assets were found.", "", 1, "L", false, 0, "")
	} else {
		widths := []float64{20, 90, 45, 25}
		pdf.SetFont("Helvetica", "B", 11)
		pdf.SetFillColor(230, 230, 230)
		for i, h := range []string{"ID", "Asset", "File type", "Similarity"} {
			pdf.CellFormat(widths[i], 8, h, "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)

		pdf.SetFont("Helvetica", "", 10)
		for _, e := range r.InfringementEvidence {
			pdf.CellFormat(widths[0], 7, strconv.FormatInt(e.ID, 10), "1", 0, "C", false, 0, "")
			pdf.CellFormat(widths[1], 7, tr(truncate(e.AssetName, 48)), "1", 0, "L", false, 0, "")
			pdf.CellFormat(widths[2], 7, tr(truncate(e.FileType, 24)), "1", 0, "L", false, 0, "")
			pdf.CellFormat(widths[3], 7, fmt.Sprintf("%d%%", e.Similarity), "1", 0, "R", false, 0, "")
			pdf.Ln(-1)
		}
	}

	if pdf.Err() {
		return pdf.Error()
	}
	return pdf.Output(w)
}

func riskLabel(level string) string {
	if l, ok := riskLabels[level]; ok {
		return l
	}
	return level
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "~"
}

// Cache keeps rendered reports on disk as <id>.pdf. Results never change
// once stored, so a rendered file is reused as is.
type Cache struct {
	dir string
	mu  sync.Mutex
}

func NewCache(dir string) (*Cache, error) {
	abs, err := filex.EnsureDir(dir)
	if err != nil {
		return nil, err
	}
	return &Cache{dir: abs}, nil
}

// Path returns the file holding the report for r, rendering it first when needed.
func (c *Cache) Path(r *models.CheckResult) (string, error) {
	path := filepath.Join(c.dir, strconv.FormatInt(r.ID, 10)+".pdf")

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	tmp, err := os.CreateTemp(c.dir, ".report-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	if err := Render(tmp, r); err != nil {
		tmp.Close()
		return "", fmt.Errorf("render report %d: %w", r.ID, err)
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", err
	}
	return path, nil
}

package pdf

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// TranscriptLine is one message row of an exported conversation.
type TranscriptLine struct {
	SenderName string
	Content    string
	Timestamp  time.Time
	IsForward  bool
	Filename   string
}

type TranscriptData struct {
	RoomName   string
	RoomType   string
	ExportedBy string
	ExportedAt time.Time
	Lines      []TranscriptLine
}

type Generator interface {
	GenerateTranscript(data TranscriptData, outPath string) error
}

type generator struct{}

func NewGenerator() Generator {
	return &generator{}
}

func ensureTarget(outPath string) error {
	return os.MkdirAll(filepath.Dir(outPath), 0o755)
}

func hr(p *gofpdf.Fpdf) {
	x, y := p.GetXY()
	p.SetDrawColor(180, 180, 180)
	p.Line(x, y, 200, y)
	p.Ln(3)
}

func sectionTitle(p *gofpdf.Fpdf, title string) {
	p.SetFont("Helvetica", "B", 13)
	p.CellFormat(0, 8, title, "", 1, "L", false, 0, "")
	hr(p)
}

func kvLine(p *gofpdf.Fpdf, key, value string) {
	p.SetFont("Helvetica", "B", 10)
	p.CellFormat(40, 6, key, "", 0, "L", false, 0, "")
	p.SetFont("Helvetica", "", 10)
	p.CellFormat(0, 6, value, "", 1, "L", false, 0, "")
}

func (g *generator) GenerateTranscript(data TranscriptData, outPath string) error {
	if err := ensureTarget(outPath); err != nil {
		return err
	}

	p := gofpdf.New("P", "mm", "A4", "")
	p.SetMargins(10, 12, 10)
	p.AddPage()

	p.SetFont("Helvetica", "B", 16)
	p.CellFormat(0, 10, "Conversation transcript", "", 1, "C", false, 0, "")
	p.Ln(2)

	sectionTitle(p, "Details")
	kvLine(p, "Room", data.RoomName)
	kvLine(p, "Type", data.RoomType)
	kvLine(p, "Exported by", data.ExportedBy)
	kvLine(p, "Exported at", data.ExportedAt.Format("2006-01-02 15:04 MST"))
	p.Ln(4)

	sectionTitle(p, "Messages")
	for _, line := range data.Lines {
		p.SetFont("Helvetica", "B", 10)
		header := fmt.Sprintf("%s  %s", line.SenderName, line.Timestamp.Format("2006-01-02 15:04"))
		if line.IsForward {
			header += "  (forwarded)"
		}
		p.CellFormat(0, 6, header, "", 1, "L", false, 0, "")

		p.SetFont("Helvetica", "", 10)
		p.MultiCell(0, 5, line.Content, "", "L", false)
		if line.Filename != "" {
			p.SetFont("Helvetica", "I", 9)
			p.CellFormat(0, 5, "Attachment: "+line.Filename, "", 1, "L", false, 0, "")
		}
		p.Ln(2)
	}

	if err := p.OutputFileAndClose(outPath); err != nil {
		return fmt.Errorf("transcript pdf: %w", err)
	}
	return nil
}

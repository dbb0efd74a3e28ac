package report

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/signintech/gopdf"
	"github.com/sirupsen/logrus"

	"mehelper/internal/scan"
	"mehelper/internal/triage"
)

const (
	fontFamily  = "DejaVu"
	marginLeft  = 40.0
	textWidth   = 515.0
	pageBottom  = 790.0
	lineSpacing = 14.0
)

// DefaultFontPaths are tried in order when no explicit font is configured.
var DefaultFontPaths = []string{
	"/usr/share/fonts/ttf-dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
}

type TelegramClient interface {
	SendMessage(chatID int64, text string) error
	SendDocument(chatID int64, fileData []byte, fileName string) error
}

type Service struct {
	tgClient  TelegramClient
	chatID    int64
	fontPaths []string
	logger    *logrus.Logger
}

// NewService builds a report renderer. fontPath, when set, is tried before
// the default locations. tg may be nil if reports are only downloaded.
func NewService(tg TelegramClient, chatID int64, fontPath string, logger *logrus.Logger) *Service {
	paths := DefaultFontPaths
	if fontPath != "" {
		paths = append([]string{fontPath}, DefaultFontPaths...)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{tgClient: tg, chatID: chatID, fontPaths: paths, logger: logger}
}

// FileName is the attachment name used for a scan's report.
func FileName(s *scan.Scan) string {
	return fmt.Sprintf("mehelper_report_%s.pdf", s.ID.String())
}

// Render lays out the scan as a one-or-more page A4 document.
func (s *Service) Render(sc *scan.Scan) ([]byte, error) {
	pdf := &gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.SetInfo(gopdf.PdfInfo{Title: "MeHelper Health Report", Creator: "MeHelper"})
	pdf.SetLeftMargin(marginLeft)
	pdf.SetTopMargin(40)
	pdf.AddPage()

	if err := s.loadFont(pdf); err != nil {
		return nil, err
	}

	w := &writer{pdf: pdf}
	w.heading("MeHelper Health Report", 20)
	w.line(11, fmt.Sprintf("Date: %s", sc.CreatedAt.Local().Format("02.01.2006 15:04")))
	w.line(11, fmt.Sprintf("Report ID: %s", sc.ID))
	w.gap(10)

	g := sc.Guidance
	w.heading("Risk Assessment", 14)
	w.line(11, fmt.Sprintf("Recorded level: %s (%s)", strings.ToUpper(string(sc.RiskLevel)), sc.RiskSource))
	w.line(11, fmt.Sprintf("Local assessment: %s risk, %s condition", sc.LocalRiskLevel, g.Assessment))
	if g.NextAction != "" {
		w.paragraph(11, g.NextAction)
	}
	w.gap(8)

	w.heading("Summary", 14)
	for _, l := range strings.Split(g.Summary, "\n") {
		w.paragraph(11, l)
	}
	w.gap(8)

	if len(g.VitalsAnalysis) > 0 {
		w.heading("Vital Signs", 14)
		for _, v := range g.VitalsAnalysis {
			w.paragraph(11, "- "+v.Text)
		}
		w.gap(8)
	}

	w.list("Possible Causes", g.PossibleCauses)
	w.list("First Aid Measures", append(append([]string(nil), g.FirstAid...), g.ImmediateSteps...))
	w.list("Danger Signs", g.DangerSigns)

	if sc.ImageAnalysis != "" {
		w.heading("Image Analysis", 14)
		w.paragraph(11, sc.ImageAnalysis)
		w.gap(8)
	}

	if ai := sc.AIResponse; ai != nil && ai.RiskAssessment != "" {
		w.heading("AI Assessment", 14)
		w.paragraph(11, ai.RiskAssessment)
		w.gap(8)
	}

	w.gap(12)
	w.paragraph(9, "This report is informational and is not a medical diagnosis. "+
		"If symptoms worsen, contact emergency services.")

	if w.err != nil {
		return nil, fmt.Errorf("failed to lay out PDF: %w", w.err)
	}

	var buf bytes.Buffer
	if _, err := pdf.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}

// Deliver renders the report and sends it to the configured chat.
func (s *Service) Deliver(ctx context.Context, sc *scan.Scan) error {
	if s.tgClient == nil || s.chatID == 0 {
		return fmt.Errorf("report delivery: %w", scan.ErrUnavailable)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := s.Render(sc)
	if err != nil {
		return err
	}

	log := s.logger.WithFields(logrus.Fields{"scan_id": sc.ID, "chat_id": s.chatID})
	if err := s.tgClient.SendDocument(s.chatID, data, FileName(sc)); err != nil {
		log.WithError(err).Error("sending report failed")
		return err
	}
	if sc.RiskLevel == triage.RiskEmergency || sc.RiskLevel == triage.RiskHigh {
		msg := fmt.Sprintf("MeHelper: a %s risk assessment was just recorded. See the attached report.", sc.RiskLevel)
		if err := s.tgClient.SendMessage(s.chatID, msg); err != nil {
			log.WithError(err).Warn("sending report notice failed")
		}
	}
	log.Info("report delivered")
	return nil
}

func (s *Service) loadFont(pdf *gopdf.GoPdf) error {
	var lastErr error
	for _, path := range s.fontPaths {
		if err := pdf.AddTTFFont(fontFamily, path); err != nil {
			lastErr = err
			continue
		}
		s.logger.WithField("path", path).Debug("loaded report font")
		return nil
	}
	return fmt.Errorf("failed to load font for PDF, install ttf-dejavu or set REPORT_FONT_PATH: %w", lastErr)
}

// writer wraps gopdf with page breaks and a sticky error.
type writer struct {
	pdf *gopdf.GoPdf
	err error
}

func (w *writer) setFont(size float64) {
	if w.err == nil {
		w.err = w.pdf.SetFont(fontFamily, "", size)
	}
}

func (w *writer) ensureSpace(h float64) {
	if w.pdf.GetY()+h > pageBottom {
		w.pdf.AddPage()
	}
}

func (w *writer) cell(text string, h float64) {
	if w.err != nil {
		return
	}
	w.ensureSpace(h)
	w.err = w.pdf.Cell(nil, text)
	w.pdf.Br(h)
}

func (w *writer) heading(text string, size float64) {
	w.setFont(size)
	w.cell(text, size+6)
}

func (w *writer) line(size float64, text string) {
	w.setFont(size)
	w.cell(text, lineSpacing)
}

// paragraph wraps text to the page width.
func (w *writer) paragraph(size float64, text string) {
	w.setFont(size)
	if w.err != nil || strings.TrimSpace(text) == "" {
		return
	}
	lines, err := w.pdf.SplitText(text, textWidth)
	if err != nil {
		w.err = err
		return
	}
	for _, l := range lines {
		w.cell(l, lineSpacing)
	}
}

func (w *writer) list(title string, items []string) {
	if len(items) == 0 {
		return
	}
	w.heading(title, 14)
	for i, it := range items {
		w.paragraph(11, fmt.Sprintf("%d. %s", i+1, it))
	}
	w.gap(8)
}

func (w *writer) gap(h float64) {
	w.pdf.Br(h)
}

package services

import (
	"bytes"
	"fmt"
	"image/color"
	"os"
	"strings"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"

	types "github.com/krushibheru/agromonitor-backend/internal/domain"
	"github.com/krushibheru/agromonitor-backend/internal/platform/logger"
)

const (
	cardWidth  = 640
	cardHeight = 360
)

var healthColors = map[string]color.NRGBA{
	types.HealthExcellent: {R: 0x2E, G: 0x7D, B: 0x32, A: 0xFF},
	types.HealthGood:      {R: 0x7C, G: 0xB3, B: 0x42, A: 0xFF},
	types.HealthModerate:  {R: 0xF9, G: 0xA8, B: 0x25, A: 0xFF},
	types.HealthPoor:      {R: 0xC6, G: 0x28, B: 0x28, A: 0xFF},
	types.HealthUnknown:   {R: 0x9E, G: 0x9E, B: 0x9E, A: 0xFF},
}

var levelColors = map[types.AlertLevel]color.NRGBA{
	types.LevelCritical: {R: 0xC6, G: 0x28, B: 0x28, A: 0xFF},
	types.LevelHigh:     {R: 0xEF, G: 0x6C, B: 0x00, A: 0xFF},
	types.LevelMedium:   {R: 0xF9, G: 0xA8, B: 0x25, A: 0xFF},
	types.LevelLow:      {R: 0x60, G: 0x7D, B: 0x8B, A: 0xFF},
}

// cardRenderer draws the field snapshot card. A TTF from REPORT_FONT_PATH is
// used when configured; otherwise the built-in bitmap face keeps the card
// renderable without bundled assets.
type cardRenderer struct {
	log  *logger.Logger
	font *truetype.Font
}

func newCardRenderer(log *logger.Logger) *cardRenderer {
	cr := &cardRenderer{log: log}

	path := strings.TrimSpace(os.Getenv("REPORT_FONT_PATH"))
	if path == "" {
		return cr
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn("snapshot card font unreadable; using built-in face", "path", path, "error", err)
		return cr
	}
	parsed, err := truetype.Parse(data)
	if err != nil {
		log.Warn("snapshot card font unparseable; using built-in face", "path", path, "error", err)
		return cr
	}
	cr.font = parsed
	return cr
}

func (cr *cardRenderer) faceAt(size float64) font.Face {
	if cr.font == nil {
		return nil
	}
	return truetype.NewFace(cr.font, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	})
}

func (cr *cardRenderer) setFace(dc *gg.Context, size float64) {
	if face := cr.faceAt(size); face != nil {
		dc.SetFontFace(face)
	}
}

// Render draws the 640x360 snapshot: field identity, health status block,
// NDVI sparkline over the window, and the active advisory count.
func (cr *cardRenderer) Render(report *FieldReport, window *types.MetricWindow, minValidPixels int) ([]byte, error) {
	if report == nil || window == nil {
		return nil, fmt.Errorf("report and window required")
	}

	dc := gg.NewContext(cardWidth, cardHeight)

	dc.SetColor(color.NRGBA{R: 0xFA, G: 0xFA, B: 0xFA, A: 0xFF})
	dc.Clear()

	// Header: name plus a one-line crop/location subtitle.
	dc.SetColor(color.NRGBA{R: 0x21, G: 0x21, B: 0x21, A: 0xFF})
	cr.setFace(dc, 24)
	dc.DrawString(truncate(report.Name, 28), 24, 48)

	subtitle := cardSubtitle(report)
	dc.SetColor(color.NRGBA{R: 0x61, G: 0x61, B: 0x61, A: 0xFF})
	cr.setFace(dc, 13)
	dc.DrawString(subtitle, 24, 74)

	// Health block, top right.
	blockColor, ok := healthColors[report.HealthStatus]
	if !ok {
		blockColor = healthColors[types.HealthUnknown]
	}
	dc.SetColor(blockColor)
	dc.DrawRoundedRectangle(456, 24, 160, 56, 8)
	dc.Fill()
	dc.SetColor(color.White)
	cr.setFace(dc, 16)
	dc.DrawStringAnchored(report.HealthStatus, 456+80, 24+28, 0.5, 0.5)

	cr.drawSparkline(dc, window, minValidPixels)

	// Footer: advisory count with a severity dot, generation date right.
	count := len(report.Advisories)
	dotColor := healthColors[types.HealthExcellent]
	label := "No active advisories"
	if count > 0 {
		if c, ok := levelColors[types.AlertLevel(report.Advisories[0].Level)]; ok {
			dotColor = c
		}
		label = fmt.Sprintf("%d active advisories", count)
		if count == 1 {
			label = "1 active advisory"
		}
	}
	dc.SetColor(dotColor)
	dc.DrawCircle(32, 332, 6)
	dc.Fill()
	dc.SetColor(color.NRGBA{R: 0x21, G: 0x21, B: 0x21, A: 0xFF})
	cr.setFace(dc, 14)
	dc.DrawStringAnchored(label, 46, 332, 0, 0.5)

	dc.SetColor(color.NRGBA{R: 0x9E, G: 0x9E, B: 0x9E, A: 0xFF})
	cr.setFace(dc, 12)
	dc.DrawStringAnchored("Generated "+report.GeneratedAt, cardWidth-24, 332, 1, 0.5)

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func (cr *cardRenderer) drawSparkline(dc *gg.Context, window *types.MetricWindow, minValidPixels int) {
	const (
		left   = 24.0
		right  = cardWidth - 24.0
		top    = 116.0
		bottom = 296.0
	)
	plotWidth := right - left
	plotHeight := bottom - top

	dc.SetColor(color.NRGBA{R: 0x61, G: 0x61, B: 0x61, A: 0xFF})
	cr.setFace(dc, 12)
	dc.DrawString(fmt.Sprintf("NDVI, last %d days", window.Days), left, top-6)

	// Frame plus the 0.5 midline.
	dc.SetColor(color.NRGBA{R: 0xE0, G: 0xE0, B: 0xE0, A: 0xFF})
	dc.SetLineWidth(1)
	dc.DrawLine(left, bottom, right, bottom)
	dc.DrawLine(left, top+plotHeight/2, right, top+plotHeight/2)
	dc.Stroke()

	type sample struct {
		index int
		value float64
	}
	samples := []sample{}
	for i, point := range window.Points {
		m := point.Record
		if !m.Usable(minValidPixels) || m.NDVIMean == nil {
			continue
		}
		samples = append(samples, sample{index: i, value: clamp01(*m.NDVIMean)})
	}

	if len(samples) == 0 {
		dc.SetColor(color.NRGBA{R: 0x9E, G: 0x9E, B: 0x9E, A: 0xFF})
		cr.setFace(dc, 14)
		dc.DrawStringAnchored("no NDVI observations in window", left+plotWidth/2, top+plotHeight/2, 0.5, 0.5)
		return
	}

	span := float64(len(window.Points) - 1)
	if span < 1 {
		span = 1
	}
	xAt := func(i int) float64 { return left + (float64(i)/span)*plotWidth }
	yAt := func(v float64) float64 { return bottom - v*plotHeight }

	line := healthColors[types.HealthExcellent]
	dc.SetColor(line)
	dc.SetLineWidth(2)
	for i := 1; i < len(samples); i++ {
		prev, cur := samples[i-1], samples[i]
		dc.DrawLine(xAt(prev.index), yAt(prev.value), xAt(cur.index), yAt(cur.value))
	}
	dc.Stroke()

	for _, s := range samples {
		dc.DrawCircle(xAt(s.index), yAt(s.value), 3)
		dc.Fill()
	}

	// Latest value label next to the newest sample.
	last := samples[len(samples)-1]
	dc.SetColor(color.NRGBA{R: 0x21, G: 0x21, B: 0x21, A: 0xFF})
	cr.setFace(dc, 12)
	dc.DrawStringAnchored(fmt.Sprintf("%.2f", last.value), xAt(last.index), yAt(last.value)-10, 0.5, 1)
}

func cardSubtitle(report *FieldReport) string {
	parts := []string{}
	if report.CropType != "" {
		crop := report.CropType
		if report.Season != "" {
			crop = crop + " / " + report.Season
		}
		parts = append(parts, crop)
	}
	if report.District != "" {
		parts = append(parts, report.District)
	}
	if report.State != "" {
		parts = append(parts, report.State)
	}
	if len(parts) == 0 {
		return "unclassified field"
	}
	return strings.Join(parts, " - ")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

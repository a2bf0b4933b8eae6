package interfaces

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	telemetry "telemetry-cloud/internal/telemetry/domain"
)

// BuildTrendPDF renders a metric trend chart with anomaly markers.
func BuildTrendPDF(deviceID, metricName string, series []telemetry.Reading, anomalies []telemetry.Anomaly) ([]byte, error) {
	if len(series) == 0 {
		return nil, errors.New("trend export: empty series")
	}

	flagged := anomalyIndex(anomalies)

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, fmt.Sprintf("Telemetry Trend: %s / %s", deviceID, metricName))
	pdf.Ln(8)
	pdf.SetFont("Arial", "", 9)
	pdf.Cell(0, 5, fmt.Sprintf("Samples: %d   Anomalies: %d   From %s to %s",
		len(series), countFlagged(series, flagged),
		series[0].Timestamp.Format(time.RFC3339),
		series[len(series)-1].Timestamp.Format(time.RFC3339)))
	pdf.Ln(8)

	const (
		plotX = 20.0
		plotY = 30.0
		plotW = 250.0
		plotH = 140.0
	)

	minV, maxV := series[0].MetricValue, series[0].MetricValue
	for _, reading := range series[1:] {
		if reading.MetricValue < minV {
			minV = reading.MetricValue
		}
		if reading.MetricValue > maxV {
			maxV = reading.MetricValue
		}
	}
	if maxV == minV {
		minV--
		maxV++
	}

	toX := func(i int) float64 {
		if len(series) == 1 {
			return plotX + plotW/2
		}
		return plotX + plotW*float64(i)/float64(len(series)-1)
	}
	toY := func(v float64) float64 {
		return plotY + plotH - plotH*(v-minV)/(maxV-minV)
	}

	// Axes and value bounds.
	pdf.SetDrawColor(120, 120, 120)
	pdf.Line(plotX, plotY, plotX, plotY+plotH)
	pdf.Line(plotX, plotY+plotH, plotX+plotW, plotY+plotH)
	pdf.Text(plotX-16, plotY+2, fmt.Sprintf("%.2f", maxV))
	pdf.Text(plotX-16, plotY+plotH, fmt.Sprintf("%.2f", minV))

	pdf.SetDrawColor(0, 90, 180)
	for i := 1; i < len(series); i++ {
		pdf.Line(toX(i-1), toY(series[i-1].MetricValue), toX(i), toY(series[i].MetricValue))
	}

	pdf.SetFillColor(200, 0, 0)
	for i, reading := range series {
		if _, ok := flagged[reading.ID]; !ok {
			continue
		}
		pdf.Circle(toX(i), toY(reading.MetricValue), 1.4, "F")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildTrendXLSX renders the series as a sheet with a native line chart,
// plus an anomalies sheet.
func BuildTrendXLSX(deviceID, metricName string, series []telemetry.Reading, anomalies []telemetry.Anomaly) ([]byte, error) {
	if len(series) == 0 {
		return nil, errors.New("trend export: empty series")
	}

	flagged := anomalyIndex(anomalies)

	f := excelize.NewFile()
	seriesSheet := "series"
	anomalySheet := "anomalies"
	f.SetSheetName("Sheet1", seriesSheet)
	if _, err := f.NewSheet(anomalySheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(seriesSheet, "A1", "Timestamp")
	_ = f.SetCellValue(seriesSheet, "B1", metricName)
	_ = f.SetCellValue(seriesSheet, "C1", "Anomaly")
	for i, reading := range series {
		row := i + 2
		_ = f.SetCellValue(seriesSheet, fmt.Sprintf("A%d", row), reading.Timestamp.Format(time.RFC3339))
		_ = f.SetCellValue(seriesSheet, fmt.Sprintf("B%d", row), reading.MetricValue)
		if _, ok := flagged[reading.ID]; ok {
			_ = f.SetCellValue(seriesSheet, fmt.Sprintf("C%d", row), "yes")
		}
	}

	lastRow := len(series) + 1
	chart := &excelize.Chart{
		Type: excelize.Line,
		Series: []excelize.ChartSeries{{
			Name:       fmt.Sprintf("'%s'!$B$1", seriesSheet),
			Categories: fmt.Sprintf("'%s'!$A$2:$A$%d", seriesSheet, lastRow),
			Values:     fmt.Sprintf("'%s'!$B$2:$B$%d", seriesSheet, lastRow),
		}},
		Title: []excelize.RichTextRun{
			{Text: fmt.Sprintf("%s / %s", deviceID, metricName)},
		},
	}
	if err := f.AddChart(seriesSheet, "E2", chart); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(anomalySheet, "A1", "Timestamp")
	_ = f.SetCellValue(anomalySheet, "B1", "Value")
	_ = f.SetCellValue(anomalySheet, "C1", "Type")
	_ = f.SetCellValue(anomalySheet, "D1", "Threshold")
	for i, anomaly := range anomalies {
		row := i + 2
		_ = f.SetCellValue(anomalySheet, fmt.Sprintf("A%d", row), anomaly.Timestamp.Format(time.RFC3339))
		_ = f.SetCellValue(anomalySheet, fmt.Sprintf("B%d", row), anomaly.MetricValue)
		_ = f.SetCellValue(anomalySheet, fmt.Sprintf("C%d", row), anomaly.AnomalyType)
		_ = f.SetCellValue(anomalySheet, fmt.Sprintf("D%d", row), anomaly.ThresholdUsed)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func anomalyIndex(anomalies []telemetry.Anomaly) map[int64]struct{} {
	index := make(map[int64]struct{}, len(anomalies))
	for _, anomaly := range anomalies {
		index[anomaly.TelemetryID] = struct{}{}
	}
	return index
}

func countFlagged(series []telemetry.Reading, flagged map[int64]struct{}) int {
	count := 0
	for _, reading := range series {
		if _, ok := flagged[reading.ID]; ok {
			count++
		}
	}
	return count
}

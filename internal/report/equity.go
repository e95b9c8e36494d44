// Package report 把回放结果渲染成权益曲线图表。HTML 始终可用,
// PNG 依赖无头浏览器,探测失败时只降级不报障。
package report

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"banyan/internal/backtest"
)

// ImageResult PNG 渲染产物,Base64 供 JSON 接口内嵌。
type ImageResult struct {
	Bytes       []byte `json:"-"`
	Base64      string `json:"base64"`
	Filename    string `json:"filename"`
	Description string `json:"description"`
}

func (r *ImageResult) DataURI() string {
	if r == nil {
		return ""
	}
	if r.Base64 == "" && len(r.Bytes) > 0 {
		r.Base64 = base64.StdEncoding.EncodeToString(r.Bytes)
	}
	if r.Base64 == "" {
		return ""
	}
	return "data:image/png;base64," + r.Base64
}

// EquityInput 一条权益曲线及其标注。
type EquityInput struct {
	Title    string
	Tag      string
	Points   []backtest.EquityPoint
	Stats    *backtest.RunStats
	Location *time.Location
}

const (
	colorBackground    = "#060c1b"
	colorTextPrimary   = "#eceff4"
	colorTextSecondary = "#9ca3af"
	colorEquity        = "#34d399"
	colorDrawdown      = "#f87171"

	chartWidthPx    = 1400
	equityHeightPx  = 520
	ddChartHeightPx = 260
)

// RenderEquityHTML 生成权益与回撤两联图的自包含 HTML。
func RenderEquityHTML(input EquityInput) ([]byte, error) {
	if len(input.Points) == 0 {
		return nil, fmt.Errorf("no equity points for %q", input.Title)
	}
	loc := input.Location
	if loc == nil {
		loc = time.UTC
	}

	xAxis := make([]string, len(input.Points))
	equity := make([]opts.LineData, len(input.Points))
	drawdown := make([]opts.LineData, len(input.Points))
	for i, pt := range input.Points {
		xAxis[i] = pt.Time.In(loc).Format("01-02 15:04:05")
		equity[i] = opts.LineData{Value: round2(pt.Equity)}
		drawdown[i] = opts.LineData{Value: round2(pt.Drawdown * 100)}
	}

	minEq, maxEq := equityBounds(input.Points)
	padding := (maxEq - minEq) * 0.05
	if padding <= 0 {
		padding = math.Max(1, math.Abs(maxEq)*0.01)
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = "Equity"
	}
	if tag := strings.TrimSpace(input.Tag); tag != "" && tag != "fixed" {
		title = fmt.Sprintf("%s [%s]", title, tag)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", equityHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:         title,
			Subtitle:      statsSubtitle(input.Stats),
			Left:          "left",
			Top:           "10",
			TitleStyle:    &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{Color: colorTextSecondary},
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(false)},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			Min:       round2(minEq - padding),
			Max:       round2(maxEq + padding),
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.2)}},
		}),
	)
	line.SetXAxis(xAxis)
	line.AddSeries("Equity", equity,
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorEquity, Width: 2}),
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
	)

	dd := charts.NewLine()
	dd.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", ddChartHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{Title: "Drawdown %", Left: "left", TitleStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{AxisLabel: &opts.AxisLabel{Show: opts.Bool(false)}}),
		charts.WithYAxisOpts(opts.YAxis{
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.15)}},
		}),
	)
	dd.SetXAxis(xAxis)
	dd.AddSeries("Drawdown", drawdown,
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorDrawdown, Width: 2}),
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
		charts.WithAreaStyleOpts(opts.AreaStyle{Color: colorDrawdown, Opacity: opts.Float(0.25)}),
	)

	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(line, dd)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RenderEquityPNG 渲染 PNG 截图。调用前无头浏览器必须可用。
func RenderEquityPNG(ctx context.Context, input EquityInput) (ImageResult, error) {
	if err := EnsureHeadlessAvailable(ctx); err != nil {
		return ImageResult{}, fmt.Errorf("headless browser unavailable: %w", err)
	}
	html, err := RenderEquityHTML(input)
	if err != nil {
		return ImageResult{}, err
	}
	height := equityHeightPx + ddChartHeightPx + 80
	png, err := renderHTMLToPNG(ctx, html, chartWidthPx, height)
	if err != nil {
		return ImageResult{}, err
	}
	name := strings.ToLower(strings.TrimSpace(input.Title))
	if name == "" {
		name = "equity"
	}
	name = strings.ReplaceAll(name, " ", "_")
	return ImageResult{
		Bytes:       png,
		Base64:      base64.StdEncoding.EncodeToString(png),
		Filename:    fmt.Sprintf("%s_equity.png", name),
		Description: statsSubtitle(input.Stats),
	}, nil
}

var (
	headlessOnce sync.Once
	headlessErr  error
)

// EnsureHeadlessAvailable 探测一次 chrome 是否可启动,结果全程缓存。
func EnsureHeadlessAvailable(ctx context.Context) error {
	headlessOnce.Do(func() {
		targetCtx := ctx
		if targetCtx == nil {
			targetCtx = context.Background()
		}
		parent, cancel := chromedp.NewContext(targetCtx)
		if cancel != nil {
			defer cancel()
		}
		headlessErr = chromedp.Run(parent)
	})
	return headlessErr
}

func statsSubtitle(st *backtest.RunStats) string {
	if st == nil {
		return ""
	}
	return fmt.Sprintf("net %+.2f (%.2f%%) | trades %d | win rate %.1f%% | max dd %.2f%%",
		st.NetPnL, st.ReturnPct, st.Trades, st.WinRate, st.MaxDrawdownPct)
}

func equityBounds(points []backtest.EquityPoint) (minVal, maxVal float64) {
	minVal = points[0].Equity
	maxVal = points[0].Equity
	for _, pt := range points {
		if pt.Equity < minVal {
			minVal = pt.Equity
		}
		if pt.Equity > maxVal {
			maxVal = pt.Equity
		}
	}
	return minVal, maxVal
}

func round2(val float64) float64 {
	return math.Round(val*100) / 100
}

func renderHTMLToPNG(ctx context.Context, html []byte, width, height int) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	parent, cancel := chromedp.NewContext(ctx)
	defer cancel()

	timeoutCtx, cancelTimeout := context.WithTimeout(parent, 20*time.Second)
	defer cancelTimeout()

	dataURI := "data:text/html;base64," + base64.StdEncoding.EncodeToString(html)
	var screenshot []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(width), int64(height)),
		chromedp.Navigate(dataURI),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(1500 * time.Millisecond),
		chromedp.FullScreenshot(&screenshot, 0),
	}
	if err := chromedp.Run(timeoutCtx, tasks...); err != nil {
		return nil, err
	}
	return screenshot, nil
}

package dashboard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/evkuzin/planthealth/care"
	"github.com/evkuzin/planthealth/storage"
	"github.com/gin-gonic/gin"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
)

const (
	chartWidth  = "900px"
	chartHeight = "400px"
	noPlants    = "No plants found"
)

// overview is everything the page shows for one plant.
type overview struct {
	plant          *storage.Plant
	latest         *storage.Reading
	daily          []storage.DailyValue
	recent         []storage.Reading
	summary        string
	recommendation string
}

func (s *Server) loadOverview(ctx context.Context, plant *storage.Plant) (*overview, error) {
	o := &overview{plant: plant}
	latest, err := s.storage.LatestReading(ctx, plant.ID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	o.latest = latest
	o.daily, err = s.storage.DailyMinimum(ctx, plant.ID, s.conf.Dashboard.HistoryDays)
	if err != nil {
		return nil, err
	}
	o.recent, err = s.storage.GetReadings(ctx, plant.ID, time.Now().Add(-defaultWindow))
	if err != nil {
		return nil, err
	}
	o.summary = s.insight(ctx, plant, latest, kindSummary)
	o.recommendation = s.insight(ctx, plant, latest, kindRecommendation)
	return o, nil
}

func createBaseGraph(title, subtitle string) []charts.GlobalOpts {
	return []charts.GlobalOpts{
		charts.WithInitializationOpts(opts.Initialization{
			Theme:  types.ThemeWesteros,
			Width:  chartWidth,
			Height: chartHeight,
		}),
		charts.WithDataZoomOpts(opts.DataZoom{}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{
			Show:      opts.Bool(true),
			Trigger:   "axis",
			TriggerOn: "mousemove",
			AxisPointer: &opts.AxisPointer{
				Type: "cross",
				Snap: opts.Bool(true),
			},
		}),
	}
}

func gaugeChart(o *overview) *charts.Gauge {
	gauge := charts.NewGauge()
	subtitle := "No sensor data available"
	value := 0.0
	color := care.ColorRed
	if o.latest != nil {
		eval := care.Evaluate(o.plant.MoistureThreshold, o.latest.Moisture)
		subtitle = fmt.Sprintf("%s %s: %s", eval.Icon, eval.Status, eval.Message)
		value = o.latest.Moisture
		color = eval.Color
	}
	gauge.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: types.ThemeWesteros, Width: chartWidth, Height: chartHeight}),
		charts.WithTitleOpts(opts.Title{Title: o.plant.Name + " Moisture", Subtitle: subtitle}),
	)
	gauge.AddSeries("Moisture", []opts.GaugeData{{Name: "%", Value: value}},
		charts.WithItemStyleOpts(opts.ItemStyle{Color: color}),
	)
	return gauge
}

func dailyChart(o *overview) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(append(createBaseGraph("Daily minimum moisture", o.summary),
		charts.WithYAxisOpts(opts.YAxis{Name: "%", Min: 0, Max: 100}),
	)...)
	days := make([]string, 0, len(o.daily))
	values := make([]opts.LineData, 0, len(o.daily))
	for _, d := range o.daily {
		days = append(days, d.Day.Format("2006-01-02"))
		values = append(values, opts.LineData{Value: d.Moisture})
	}
	line.SetXAxis(days).AddSeries("Minimum", values,
		charts.WithMarkLineNameYAxisItemOpts(opts.MarkLineNameYAxisItem{
			Name:  "Ideal",
			YAxis: o.plant.MoistureThreshold,
		}),
	)
	return line
}

func recentChart(o *overview) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(append(createBaseGraph("Last 24 hours", o.recommendation),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
	)...)
	times := make([]string, 0, len(o.recent))
	moisture := make([]opts.LineData, 0, len(o.recent))
	temperature := make([]opts.LineData, 0, len(o.recent))
	for _, r := range o.recent {
		times = append(times, r.CreatedAt.Local().Format("15:04"))
		moisture = append(moisture, opts.LineData{Value: r.Moisture})
		temperature = append(temperature, opts.LineData{Value: r.Temperature})
	}
	line.SetXAxis(times).
		AddSeries("Moisture %", moisture).
		AddSeries("Temperature °C", temperature).
		SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))
	return line
}

func scatterChart(o *overview) *charts.Scatter {
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: types.ThemeWesteros, Width: chartWidth, Height: chartHeight}),
		charts.WithTitleOpts(opts.Title{Title: "Moisture vs temperature"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "°C", Type: "value"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "%", Type: "value"}),
	)
	points := make([]opts.ScatterData, 0, len(o.recent))
	for _, r := range o.recent {
		points = append(points, opts.ScatterData{Value: []float64{r.Temperature, r.Moisture}})
	}
	scatter.AddSeries("Readings", points)
	return scatter
}

func (s *Server) renderPage(o *overview) ([]byte, error) {
	page := components.NewPage()
	page.SetPageTitle(fmt.Sprintf("%s - %s", s.conf.Dashboard.Title, o.plant.Name))
	page.AddCharts(gaugeChart(o), dailyChart(o), recentChart(o), scatterChart(o))
	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return nil, fmt.Errorf("cannot render page: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *Server) index(c *gin.Context) {
	ctx := c.Request.Context()
	var plant *storage.Plant
	if v := c.Query("plant"); v != "" {
		id, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			c.String(http.StatusNotFound, "Plant %s not found", v)
			return
		}
		plant, err = s.storage.GetPlant(ctx, uint(id))
		if errors.Is(err, storage.ErrNotFound) {
			c.String(http.StatusNotFound, "Plant %s not found", v)
			return
		}
		if err != nil {
			s.logger.Errorf("cannot get plant %s: %s", v, err)
			c.String(http.StatusInternalServerError, "Cannot load plant")
			return
		}
	} else {
		plants, err := s.storage.ListPlants(ctx)
		if err != nil {
			s.logger.Errorf("cannot list plants: %s", err)
			c.String(http.StatusInternalServerError, "Cannot load plants")
			return
		}
		if len(plants) == 0 {
			c.String(http.StatusOK, noPlants)
			return
		}
		plant = &plants[0]
	}

	o, err := s.loadOverview(ctx, plant)
	if err != nil {
		s.logger.Errorf("cannot load %s: %s", plant.Name, err)
		c.String(http.StatusInternalServerError, "Cannot load plant")
		return
	}
	html, err := s.renderPage(o)
	if err != nil {
		s.logger.Error(err)
		c.String(http.StatusInternalServerError, "Cannot render page")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", html)
}
